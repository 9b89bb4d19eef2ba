package smsmessage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository/memory"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

type mockSms struct {
	mock.Mock
}

func (m *mockSms) Send(ctx context.Context, recipient, message string) error {
	return m.Called(ctx, recipient, message).Error(0)
}

var start = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func seedIdleFixtures(t *testing.T, tracker *IdleTracker, clk *clock.Fixed) {
	t.Helper()
	fixtures := []struct {
		typ    model.SmsMessageType
		status model.SmsMessageStatus
	}{
		{model.SmsMessageTypeVerification, model.SmsMessageStatusDelivered},
		{model.SmsMessageTypeSendProfileSecond, model.SmsMessageStatusNew},
		{model.SmsMessageTypeSendProfile, model.SmsMessageStatusNew},
		{model.SmsMessageTypeSendProfile, model.SmsMessageStatusSent},
		{model.SmsMessageTypeResendProfile, model.SmsMessageStatusSent},
		{model.SmsMessageTypeVerification, model.SmsMessageStatusSent},
	}
	for _, f := range fixtures {
		require.NoError(t, tracker.repo.Create(context.Background(), &model.SmsMessage{
			Recipient: "+639170000000",
			Message:   "card",
			Type:      f.typ,
			Status:    f.status,
			CreatedAt: clk.Now(),
			UpdatedAt: clk.Now(),
		}))
	}
}

func TestIdleTracker_FindIdle(t *testing.T) {
	clk := clock.NewFixed(start)
	tracker := NewIdleTracker(memory.NewSmsMessageRepository(clk), clk)
	seedIdleFixtures(t, tracker, clk)
	ctx := context.Background()

	clk.Advance(5 * time.Minute)
	idle, err := tracker.FindIdle(ctx, SmsMaxIdleMinutes, DefaultWatchedTypes...)
	require.NoError(t, err)
	assert.Empty(t, idle)

	clk.Advance(11 * time.Minute)
	idle, err = tracker.FindIdle(ctx, SmsMaxIdleMinutes, DefaultWatchedTypes...)
	require.NoError(t, err)
	require.Len(t, idle, 3)
	for _, msg := range idle {
		assert.Contains(t, DefaultWatchedTypes, msg.Type)
		assert.True(t, msg.Status.Undelivered())
	}
}

func TestIdleTracker_ThresholdIsInclusive(t *testing.T) {
	clk := clock.NewFixed(start)
	tracker := NewIdleTracker(memory.NewSmsMessageRepository(clk), clk)
	seedIdleFixtures(t, tracker, clk)

	clk.Advance(15 * time.Minute)
	idle, err := tracker.FindIdle(context.Background(), 15, DefaultWatchedTypes...)
	require.NoError(t, err)
	assert.Len(t, idle, 3)
}

func TestIdleTracker_WatchSetIsCallerPolicy(t *testing.T) {
	clk := clock.NewFixed(start)
	tracker := NewIdleTracker(memory.NewSmsMessageRepository(clk), clk)
	seedIdleFixtures(t, tracker, clk)
	clk.Advance(time.Hour)
	ctx := context.Background()

	idle, err := tracker.FindIdle(ctx, 15)
	require.NoError(t, err)
	assert.Empty(t, idle)

	idle, err = tracker.FindIdle(ctx, 15, model.SmsMessageTypeVerification)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, model.SmsMessageStatusSent, idle[0].Status)

	_, err = tracker.FindIdle(ctx, -1, model.SmsMessageTypeVerification)
	assert.Equal(t, apperrors.ErrInvalidPayload, apperrors.CodeOf(err))
}

func TestSender_SendRecordsOnlyOnSuccess(t *testing.T) {
	clk := clock.NewFixed(start)
	repo := memory.NewSmsMessageRepository(clk)
	sms := new(mockSms)
	sms.On("Send", mock.Anything, "+15550100", "ok").Return(nil)
	sms.On("Send", mock.Anything, "+15550199", "fail").Return(errors.New("gateway down"))
	sender := NewSender(repo, sms, clk)
	ctx := context.Background()

	card := int64(12)
	msg, err := sender.Send(ctx, SendRequest{
		Recipient:      "+15550100",
		Message:        "ok",
		Type:           model.SmsMessageTypeSendProfile,
		TargetObjectID: &card,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SmsMessageStatusSent, msg.Status)
	assert.Equal(t, start, msg.UpdatedAt)
	assert.Equal(t, model.SentCardRef{ID: 12, Valid: true}, msg.CardRef())

	_, err = sender.Send(ctx, SendRequest{Recipient: "+15550199", Message: "fail", Type: model.SmsMessageTypeVerification})
	assert.Equal(t, apperrors.ErrChannelFailure, apperrors.CodeOf(err))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	sms.AssertExpectations(t)
}

func TestSender_MarkDelivered(t *testing.T) {
	clk := clock.NewFixed(start)
	repo := memory.NewSmsMessageRepository(clk)
	sender := NewSender(repo, nil, clk)
	ctx := context.Background()

	sent := &model.SmsMessage{Recipient: "+1", Type: model.SmsMessageTypeSendProfile, Status: model.SmsMessageStatusSent}
	stopped := &model.SmsMessage{Recipient: "+1", Type: model.SmsMessageTypeSendProfile, Status: model.SmsMessageStatusForcedStop}
	require.NoError(t, repo.Create(ctx, sent))
	require.NoError(t, repo.Create(ctx, stopped))

	clk.Advance(time.Minute)
	changed, err := sender.MarkDelivered(ctx, sent.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	loaded, err := repo.FindByPk(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SmsMessageStatusDelivered, loaded.Status)
	assert.Equal(t, start.Add(time.Minute), loaded.UpdatedAt)

	changed, err = sender.MarkDelivered(ctx, stopped.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = sender.MarkDelivered(ctx, 999)
	assert.True(t, apperrors.IsNotFound(err))
}
