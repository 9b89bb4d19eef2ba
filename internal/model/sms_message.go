package model

import (
	"context"
	"time"
)

type SmsMessageType string

const (
	SmsMessageTypeVerification      SmsMessageType = "VERIFICATION"
	SmsMessageTypeSendProfile       SmsMessageType = "SEND_PROFILE"
	SmsMessageTypeSendProfileSecond SmsMessageType = "SEND_PROFILE_SECOND"
	SmsMessageTypeResendProfile     SmsMessageType = "RESEND_PROFILE"
)

type SmsMessageStatus string

const (
	SmsMessageStatusNew        SmsMessageStatus = "NEW"
	SmsMessageStatusSent       SmsMessageStatus = "SENT"
	SmsMessageStatusDelivered  SmsMessageStatus = "DELIVERED"
	SmsMessageStatusForcedStop SmsMessageStatus = "FORCED_STOP"
)

// Undelivered reports whether the status still awaits a delivery report.
func (s SmsMessageStatus) Undelivered() bool {
	return s == SmsMessageStatusNew || s == SmsMessageStatusSent
}

// SmsMessage is a record of an SMS handed to the gateway.
type SmsMessage struct {
	ID             int64            `json:"id" db:"id"`
	UserID         *int64           `json:"user_id,omitempty" db:"user_id"`
	Recipient      string           `json:"recipient" db:"recipient"`
	Message        string           `json:"message" db:"message"`
	Type           SmsMessageType   `json:"sms_message_type" db:"sms_message_type"`
	Status         SmsMessageStatus `json:"message_status" db:"message_status"`
	ErrorCode      string           `json:"error_code" db:"error_code"`
	TargetObjectID *int64           `json:"target_object_id,omitempty" db:"target_object_id"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// IsIdle reports whether the message has waited at least threshold for a
// delivery report and its type is one of watched.
func (m *SmsMessage) IsIdle(now time.Time, threshold time.Duration, watched []SmsMessageType) bool {
	if !m.Status.Undelivered() {
		return false
	}
	if now.Sub(m.UpdatedAt) < threshold {
		return false
	}
	for _, t := range watched {
		if m.Type == t {
			return true
		}
	}
	return false
}

// CardRef returns the weak reference to the card this SMS delivered.
func (m *SmsMessage) CardRef() SentCardRef {
	if m.TargetObjectID == nil {
		return SentCardRef{}
	}
	return SentCardRef{ID: *m.TargetObjectID, Valid: true}
}

// CardLookup loads a card by id. It returns (nil, nil) when the card is gone.
type CardLookup func(ctx context.Context, id int64) (*SentCard, error)

// SentCardRef points at a SentCard without owning it. The card may have been
// removed; resolving never cascades or creates anything.
type SentCardRef struct {
	ID    int64
	Valid bool
}

// Resolve looks the card up on demand. A missing reference or card yields (nil, nil).
func (r SentCardRef) Resolve(ctx context.Context, lookup CardLookup) (*SentCard, error) {
	if !r.Valid {
		return nil, nil
	}
	return lookup(ctx, r.ID)
}
