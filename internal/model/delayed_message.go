package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type DelayedMessageType string

const (
	DelayedMessageTypeSMS   DelayedMessageType = "DELAYED_SMS"
	DelayedMessageTypeEmail DelayedMessageType = "DELAYED_EMAIL"
)

type DelayedMessageStatus string

const (
	DelayedMessageStatusPending DelayedMessageStatus = "PENDING"
	DelayedMessageStatusSent    DelayedMessageStatus = "SENT"
)

// DelayedMessage is a send operation held back until CreatedAt + DelayMinutes.
type DelayedMessage struct {
	ID           int64                `json:"id" db:"id"`
	Type         DelayedMessageType   `json:"type" db:"type"`
	Payload      json.RawMessage      `json:"payload" db:"payload"`
	DelayMinutes int                  `json:"delay_minutes" db:"delay_minutes"`
	Status       DelayedMessageStatus `json:"status" db:"status"`
	Attempts     int                  `json:"attempts" db:"attempts"`
	LastError    *string              `json:"last_error,omitempty" db:"last_error"`
	SentAt       *time.Time           `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt    time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at" db:"updated_at"`
}

// ScheduledAt is the earliest instant the message may be dispatched.
func (m *DelayedMessage) ScheduledAt() time.Time {
	return m.CreatedAt.Add(time.Duration(m.DelayMinutes) * time.Minute)
}

// IsDue reports whether the message is pending and its scheduled time has arrived.
func (m *DelayedMessage) IsDue(now time.Time) bool {
	return m.Status == DelayedMessageStatusPending && !now.Before(m.ScheduledAt())
}

// DelayedPayload is the tagged union carried by a delayed message.
// Only the variants declared in this package implement it.
type DelayedPayload interface {
	DelayedMessageType() DelayedMessageType
	isDelayedPayload()
}

// SmsPayload is the DELAYED_SMS variant.
type SmsPayload struct {
	SmsMessageType SmsMessageType `json:"sms_message_type" validate:"required,oneof=VERIFICATION SEND_PROFILE SEND_PROFILE_SECOND RESEND_PROFILE"`
	PhoneNumber    string         `json:"phone_number" validate:"required"`
	Message        string         `json:"message" validate:"required,max=1600"`
	UserID         *int64         `json:"user_id,omitempty"`
	TargetObjectID *int64         `json:"target_object_id,omitempty"`
}

func (SmsPayload) DelayedMessageType() DelayedMessageType { return DelayedMessageTypeSMS }
func (SmsPayload) isDelayedPayload()                      {}

// EmailPayload is the DELAYED_EMAIL variant.
type EmailPayload struct {
	Recipient string `json:"recipient" validate:"required,email"`
	From      string `json:"from" validate:"required,email"`
	Subject   string `json:"subject" validate:"required"`
	Body      string `json:"body"`
}

func (EmailPayload) DelayedMessageType() DelayedMessageType { return DelayedMessageTypeEmail }
func (EmailPayload) isDelayedPayload()                      {}

// ErrUnsupportedPayloadType is returned by DecodePayload for an unknown type tag.
type ErrUnsupportedPayloadType struct {
	Type DelayedMessageType
}

func (e *ErrUnsupportedPayloadType) Error() string {
	return fmt.Sprintf("unsupported delayed message type %q", e.Type)
}

// DecodePayload unpacks the stored JSON into the variant selected by the type tag.
func (m *DelayedMessage) DecodePayload() (DelayedPayload, error) {
	switch m.Type {
	case DelayedMessageTypeSMS:
		var p SmsPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode sms payload: %w", err)
		}
		return p, nil
	case DelayedMessageTypeEmail:
		var p EmailPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode email payload: %w", err)
		}
		return p, nil
	default:
		return nil, &ErrUnsupportedPayloadType{Type: m.Type}
	}
}
