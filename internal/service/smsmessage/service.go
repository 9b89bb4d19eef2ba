// Package smsmessage records sent SMS messages and tracks the ones still
// waiting for a delivery report.
package smsmessage

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/card-notifier/internal/channel"
	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

// SmsMaxIdleMinutes is how long an SMS may wait for a delivery report
// before it counts as idle.
const SmsMaxIdleMinutes = 15

// DefaultWatchedTypes are the SMS types whose silence is worth escalating.
var DefaultWatchedTypes = []model.SmsMessageType{
	model.SmsMessageTypeSendProfile,
	model.SmsMessageTypeResendProfile,
}

type SendRequest struct {
	Recipient      string
	Message        string
	Type           model.SmsMessageType
	UserID         *int64
	TargetObjectID *int64
}

// Sender sends an SMS and records it. Nothing is recorded when the channel fails.
type Sender struct {
	repo    repository.SmsMessageRepository
	channel channel.SmsChannel
	clock   clock.Clock
}

func NewSender(repo repository.SmsMessageRepository, ch channel.SmsChannel, clk clock.Clock) *Sender {
	return &Sender{repo: repo, channel: ch, clock: clk}
}

func (s *Sender) Send(ctx context.Context, req SendRequest) (*model.SmsMessage, error) {
	if err := s.channel.Send(ctx, req.Recipient, req.Message); err != nil {
		return nil, apperrors.ChannelFailure(channel.NameSMS, err)
	}

	now := s.clock.Now()
	msg := &model.SmsMessage{
		UserID:         req.UserID,
		Recipient:      req.Recipient,
		Message:        req.Message,
		Type:           req.Type,
		Status:         model.SmsMessageStatusSent,
		TargetObjectID: req.TargetObjectID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, apperrors.Persistence("create sms message", err)
	}
	return msg, nil
}

// MarkDelivered applies a delivery report. A message already delivered or
// force-stopped is left untouched and reported as not changed.
func (s *Sender) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	msg, err := s.repo.FindByPk(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, err
		}
		return false, apperrors.Persistence("find sms message", err)
	}
	if !msg.Status.Undelivered() {
		return false, nil
	}

	msg.Status = model.SmsMessageStatusDelivered
	msg.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, msg); err != nil {
		return false, apperrors.Persistence("update sms message", err)
	}
	return true, nil
}

// IdleTracker finds SMS messages stuck without a delivery report.
type IdleTracker struct {
	repo  repository.SmsMessageRepository
	clock clock.Clock
}

func NewIdleTracker(repo repository.SmsMessageRepository, clk clock.Clock) *IdleTracker {
	return &IdleTracker{repo: repo, clock: clk}
}

// FindIdle returns undelivered messages of the watched types last updated at
// least thresholdMinutes ago. An empty watch set matches nothing.
func (t *IdleTracker) FindIdle(ctx context.Context, thresholdMinutes int, watched ...model.SmsMessageType) ([]*model.SmsMessage, error) {
	if thresholdMinutes < 0 {
		return nil, apperrors.InvalidPayload(fmt.Sprintf("negative idle threshold %d", thresholdMinutes), nil)
	}
	if len(watched) == 0 {
		return []*model.SmsMessage{}, nil
	}

	idleSince := t.clock.Now().Add(-time.Duration(thresholdMinutes) * time.Minute)
	msgs, err := t.repo.FindIdledSmsMessages(ctx, idleSince, watched...)
	if err != nil {
		return nil, apperrors.Persistence("find idle sms messages", err)
	}
	return msgs, nil
}
