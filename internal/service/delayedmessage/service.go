// Package delayedmessage holds sends back until their due time and then
// dispatches them through the channel matching their payload.
package delayedmessage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/card-notifier/internal/channel"
	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
	"github.com/jwalitptl/card-notifier/internal/service/smsmessage"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
	"github.com/jwalitptl/card-notifier/pkg/logbuffer"
	"github.com/jwalitptl/card-notifier/pkg/logger"
)

// SmsSender sends an SMS and records the resulting SmsMessage.
type SmsSender interface {
	Send(ctx context.Context, req smsmessage.SendRequest) (*model.SmsMessage, error)
}

type Config struct {
	// MaxAttempts stops dispatching a message whose payload failed to decode or
	// validate this many times. Channel failures are not counted. 0 is unlimited.
	MaxAttempts int
}

// Result tallies one SendDue pass.
type Result struct {
	Sent   int `json:"sent"`
	Unsent int `json:"unsent"`
}

type Service struct {
	repo     repository.DelayedMessageRepository
	sms      SmsSender
	email    channel.EmailChannel
	clock    clock.Clock
	validate *validator.Validate
	logger   *logger.Logger
	cfg      Config
}

func NewService(
	repo repository.DelayedMessageRepository,
	sms SmsSender,
	email channel.EmailChannel,
	clk clock.Clock,
	log *logger.Logger,
	cfg Config,
) *Service {
	return &Service{
		repo:     repo,
		sms:      sms,
		email:    email,
		clock:    clk,
		validate: validator.New(),
		logger:   log,
		cfg:      cfg,
	}
}

// Enqueue stores a pending message that becomes due delayMinutes from now.
func (s *Service) Enqueue(ctx context.Context, payload model.DelayedPayload, delayMinutes int) (*model.DelayedMessage, error) {
	if payload == nil {
		return nil, apperrors.InvalidPayload("payload is required", nil)
	}
	if delayMinutes < 0 {
		return nil, apperrors.InvalidPayload(fmt.Sprintf("negative delay %d", delayMinutes), nil)
	}
	if err := s.validate.Struct(payload); err != nil {
		return nil, apperrors.InvalidPayload("invalid delayed message payload", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.InvalidPayload("encode payload", err)
	}

	now := s.clock.Now()
	msg := &model.DelayedMessage{
		Type:         payload.DelayedMessageType(),
		Payload:      raw,
		DelayMinutes: delayMinutes,
		Status:       model.DelayedMessageStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, apperrors.Persistence("create delayed message", err)
	}
	return msg, nil
}

// FindDue returns pending messages scheduled at or before now, by ascending id.
func (s *Service) FindDue(ctx context.Context, now time.Time) ([]*model.DelayedMessage, error) {
	msgs, err := s.repo.FindDelayedMessagesToSend(ctx, now)
	if err != nil {
		return nil, apperrors.Persistence("find due delayed messages", err)
	}
	return msgs, nil
}

// SendDue dispatches every due message. A failed send leaves the message
// pending for the next pass; only store failures abort the batch.
func (s *Service) SendDue(ctx context.Context, now time.Time, sink logbuffer.Sink) (Result, error) {
	var res Result

	due, err := s.FindDue(ctx, now)
	if err != nil {
		return res, err
	}

	for _, msg := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if s.cfg.MaxAttempts > 0 && msg.Attempts >= s.cfg.MaxAttempts {
			res.Unsent++
			sink.Printf("delayed message %d (%s) skipped after %d undeliverable payload attempts", msg.ID, msg.Type, msg.Attempts)
			continue
		}

		sendErr := s.dispatch(ctx, msg)
		if apperrors.IsPersistence(sendErr) {
			return res, sendErr
		}

		msg.UpdatedAt = now
		if sendErr != nil {
			// Channel failures stay uncapped: the provider may recover by the next pass.
			if apperrors.IsPayload(sendErr) {
				msg.Attempts++
			}
			reason := sendErr.Error()
			msg.LastError = &reason
			if err := s.repo.Update(ctx, msg); err != nil {
				return res, apperrors.Persistence("update delayed message", err)
			}
			res.Unsent++
			sink.Printf("delayed message %d (%s) failed, attempt %d: %v", msg.ID, msg.Type, msg.Attempts, sendErr)
			s.logger.Warn("Delayed message send failed", "id", msg.ID, "type", string(msg.Type), "attempts", msg.Attempts, "error", reason)
			continue
		}

		sentAt := now
		msg.Status = model.DelayedMessageStatusSent
		msg.SentAt = &sentAt
		msg.LastError = nil
		if err := s.repo.Update(ctx, msg); err != nil {
			return res, apperrors.Persistence("update delayed message", err)
		}
		res.Sent++
		sink.Printf("delayed message %d (%s) sent", msg.ID, msg.Type)
	}

	s.logger.Debug("Delayed message pass finished", "due", len(due), "sent", res.Sent, "unsent", res.Unsent)
	return res, nil
}

func (s *Service) dispatch(ctx context.Context, msg *model.DelayedMessage) error {
	payload, err := msg.DecodePayload()
	if err != nil {
		var unsupported *model.ErrUnsupportedPayloadType
		if errors.As(err, &unsupported) {
			return apperrors.UnsupportedPayload(err)
		}
		return apperrors.InvalidPayload("decode payload", err)
	}
	if err := s.validate.Struct(payload); err != nil {
		return apperrors.InvalidPayload("invalid delayed message payload", err)
	}

	switch p := payload.(type) {
	case model.SmsPayload:
		_, err := s.sms.Send(ctx, smsmessage.SendRequest{
			Recipient:      p.PhoneNumber,
			Message:        p.Message,
			Type:           p.SmsMessageType,
			UserID:         p.UserID,
			TargetObjectID: p.TargetObjectID,
		})
		return err
	case model.EmailPayload:
		if err := s.email.Send(ctx, p.From, p.Recipient, p.Subject, p.Body); err != nil {
			return apperrors.ChannelFailure(channel.NameEmail, err)
		}
		return nil
	default:
		return apperrors.UnsupportedPayload(&model.ErrUnsupportedPayloadType{Type: msg.Type})
	}
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, apperrors.Persistence("count delayed messages", err)
	}
	return n, nil
}

func (s *Service) CountSent(ctx context.Context) (int64, error) {
	return s.countByStatus(ctx, model.DelayedMessageStatusSent)
}

func (s *Service) CountUnsent(ctx context.Context) (int64, error) {
	return s.countByStatus(ctx, model.DelayedMessageStatusPending)
}

func (s *Service) countByStatus(ctx context.Context, status model.DelayedMessageStatus) (int64, error) {
	n, err := s.repo.CountByStatus(ctx, status)
	if err != nil {
		return 0, apperrors.Persistence("count delayed messages", err)
	}
	return n, nil
}
