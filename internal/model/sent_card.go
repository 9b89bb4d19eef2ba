package model

import "time"

// SentCard is a contact card a user has shared with a recipient.
type SentCard struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	ProfileID    int64     `json:"profile_id" db:"profile_id"`
	FullName     string    `json:"full_name" db:"full_name"`
	EmailAddress string    `json:"email_address" db:"email_address"`
	PhoneNumber  string    `json:"phone_number" db:"phone_number"`
	Notes        string    `json:"notes" db:"notes"`
	DateSent     time.Time `json:"date_sent" db:"date_sent"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
