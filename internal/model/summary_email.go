package model

import "time"

type SummaryType string

const (
	SummaryTypeDaily SummaryType = "DAILY"
)

// SummaryEmail records that a digest went out to a user.
type SummaryEmail struct {
	ID                   int64       `json:"id" db:"id"`
	UserID               int64       `json:"user_id" db:"user_id"`
	SummaryType          SummaryType `json:"summary_type" db:"summary_type"`
	CardsIncludedOnEmail int         `json:"cards_included_on_email" db:"cards_included_on_email"`
	CreatedAt            time.Time   `json:"created_at" db:"created_at"`
}
