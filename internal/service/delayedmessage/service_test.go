package delayedmessage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
	"github.com/jwalitptl/card-notifier/internal/repository/memory"
	"github.com/jwalitptl/card-notifier/internal/service/smsmessage"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
	"github.com/jwalitptl/card-notifier/pkg/logbuffer"
	"github.com/jwalitptl/card-notifier/pkg/logger"
)

type mockSms struct {
	mock.Mock
}

func (m *mockSms) Send(ctx context.Context, recipient, message string) error {
	return m.Called(ctx, recipient, message).Error(0)
}

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) Send(ctx context.Context, from, to, subject, body string) error {
	return m.Called(ctx, from, to, subject, body).Error(0)
}

var start = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

type fixture struct {
	clk     *clock.Fixed
	stores  repository.Stores
	sms     *mockSms
	email   *mockEmail
	service *Service
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clk := clock.NewFixed(start)
	stores := memory.NewStores(clk)
	sms := new(mockSms)
	email := new(mockEmail)
	sender := smsmessage.NewSender(stores.SmsMessages, sms, clk)
	return &fixture{
		clk:     clk,
		stores:  stores,
		sms:     sms,
		email:   email,
		service: NewService(stores.DelayedMessages, sender, email, clk, logger.Nop(), cfg),
	}
}

func smsPayload(phone string) model.SmsPayload {
	return model.SmsPayload{
		SmsMessageType: model.SmsMessageTypeSendProfile,
		PhoneNumber:    phone,
		Message:        "Juan sent you a card",
	}
}

func emailPayload(to string) model.EmailPayload {
	return model.EmailPayload{
		Recipient: to,
		From:      "no-reply@cards.local",
		Subject:   "You received a card",
		Body:      "Open the app to view it.",
	}
}

func (f *fixture) enqueue(t *testing.T, payload model.DelayedPayload, delay int) *model.DelayedMessage {
	t.Helper()
	msg, err := f.service.Enqueue(context.Background(), payload, delay)
	require.NoError(t, err)
	return msg
}

func (f *fixture) assertCountsConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	total, err := f.service.Count(ctx)
	require.NoError(t, err)
	sent, err := f.service.CountSent(ctx)
	require.NoError(t, err)
	unsent, err := f.service.CountUnsent(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, sent+unsent)
}

func TestSendDue_MixedTypes(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f.enqueue(t, smsPayload("+639171111111"), 0)
	f.enqueue(t, smsPayload("+639172222222"), 0)
	f.enqueue(t, smsPayload("+639173333333"), 60)
	f.enqueue(t, emailPayload("ana@example.com"), 0)
	f.enqueue(t, emailPayload("ben@example.com"), 180)

	due, err := f.service.FindDue(ctx, f.clk.Now())
	require.NoError(t, err)
	require.Len(t, due, 3)
	types := map[model.DelayedMessageType]int{}
	for _, msg := range due {
		types[msg.Type]++
	}
	assert.Equal(t, 2, types[model.DelayedMessageTypeSMS])
	assert.Equal(t, 1, types[model.DelayedMessageTypeEmail])

	res, err := f.service.SendDue(ctx, f.clk.Now(), logbuffer.Discard)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 3}, res)

	sent, err := f.service.CountSent(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sent)
	f.assertCountsConsistent(t)
}

func TestSendDue_RecordsSmsMessages(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	f.enqueue(t, smsPayload("+639171111111"), 0)
	f.enqueue(t, smsPayload("+639172222222"), 0)
	f.enqueue(t, smsPayload("+639173333333"), 0)
	f.enqueue(t, smsPayload("+639174444444"), 120)
	f.enqueue(t, emailPayload("ana@example.com"), 0)
	f.enqueue(t, emailPayload("ben@example.com"), 180)

	due, err := f.service.FindDue(ctx, f.clk.Now())
	require.NoError(t, err)
	assert.Len(t, due, 4)

	buf := logbuffer.New()
	_, err = f.service.SendDue(ctx, f.clk.Now(), buf)
	require.NoError(t, err)
	assert.Equal(t, 4, buf.LineCount())

	sent, err := f.service.CountSent(ctx)
	require.NoError(t, err)
	unsent, err := f.service.CountUnsent(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sent)
	assert.Equal(t, int64(2), unsent)

	smsRows, err := f.stores.SmsMessages.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, smsRows, 3)
	for _, row := range smsRows {
		assert.Equal(t, model.SmsMessageStatusSent, row.Status)
		assert.Equal(t, model.SmsMessageTypeSendProfile, row.Type)
	}
}

func TestFindDue_Boundary(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.enqueue(t, emailPayload("ana@example.com"), 30)

	due, err := f.service.FindDue(ctx, start.Add(30*time.Minute-time.Second))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = f.service.FindDue(ctx, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestSendDue_RepeatIsNoop(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	msg := f.enqueue(t, emailPayload("ana@example.com"), 0)

	_, err := f.service.SendDue(ctx, f.clk.Now(), logbuffer.Discard)
	require.NoError(t, err)
	before, err := f.stores.DelayedMessages.FindByPk(ctx, msg.ID)
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	res, err := f.service.SendDue(ctx, f.clk.Now(), logbuffer.Discard)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	after, err := f.stores.DelayedMessages.FindByPk(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.NotNil(t, after.SentAt)
	assert.Equal(t, start, *after.SentAt)
	f.email.AssertExpectations(t)
}

func TestSendDue_IsolatesChannelFailures(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.email.On("Send", mock.Anything, mock.Anything, "ana@example.com", mock.Anything, mock.Anything).Return(errors.New("relay refused")).Once()
	f.email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	failed := f.enqueue(t, emailPayload("ana@example.com"), 0)
	f.enqueue(t, smsPayload("+639171111111"), 0)
	f.enqueue(t, emailPayload("ben@example.com"), 0)

	buf := logbuffer.New()
	res, err := f.service.SendDue(ctx, f.clk.Now(), buf)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 2, Unsent: 1}, res)
	assert.Contains(t, buf.Lines()[0], "failed")

	loaded, err := f.stores.DelayedMessages.FindByPk(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DelayedMessageStatusPending, loaded.Status)
	assert.Equal(t, 0, loaded.Attempts)
	require.NotNil(t, loaded.LastError)
	assert.Contains(t, *loaded.LastError, "relay refused")
	f.assertCountsConsistent(t)

	res, err = f.service.SendDue(ctx, f.clk.Now(), logbuffer.Discard)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1}, res)

	loaded, err = f.stores.DelayedMessages.FindByPk(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DelayedMessageStatusSent, loaded.Status)
	assert.Nil(t, loaded.LastError)
}

func TestSendDue_RetriesThroughChannelOutage(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 5})
	ctx := context.Background()
	f.email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("relay down")).Times(5)
	f.email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	msg := f.enqueue(t, emailPayload("ana@example.com"), 0)

	sent := 0
	for tick := 0; tick < 10; tick++ {
		res, err := f.service.SendDue(ctx, f.clk.Now(), logbuffer.Discard)
		require.NoError(t, err)
		sent += res.Sent
		f.clk.Advance(time.Minute)
	}

	assert.Equal(t, 1, sent)
	f.email.AssertNumberOfCalls(t, "Send", 6)

	loaded, err := f.stores.DelayedMessages.FindByPk(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DelayedMessageStatusSent, loaded.Status)
	assert.Equal(t, 0, loaded.Attempts)
	f.assertCountsConsistent(t)
}

func TestSendDue_StopsRetryingBadPayloadAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 2})
	ctx := context.Background()
	bad := &model.DelayedMessage{Type: model.DelayedMessageTypeEmail, Payload: json.RawMessage(`{"recipient":"not-an-email"}`), CreatedAt: start}
	require.NoError(t, f.stores.DelayedMessages.Create(ctx, bad))

	buf := logbuffer.New()
	for i := 0; i < 3; i++ {
		res, err := f.service.SendDue(ctx, f.clk.Now(), buf)
		require.NoError(t, err)
		assert.Equal(t, Result{Unsent: 1}, res)
	}

	loaded, err := f.stores.DelayedMessages.FindByPk(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DelayedMessageStatusPending, loaded.Status)
	assert.Equal(t, 2, loaded.Attempts)
	assert.Contains(t, buf.Lines()[2], "skipped")
	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendDue_MalformedPayloadIsIsolated(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	bad := []*model.DelayedMessage{
		{Type: "DELAYED_PUSH", Payload: json.RawMessage(`{}`), CreatedAt: start},
		{Type: model.DelayedMessageTypeSMS, Payload: json.RawMessage(`{not json`), CreatedAt: start},
		{Type: model.DelayedMessageTypeEmail, Payload: json.RawMessage(`{"recipient":"not-an-email"}`), CreatedAt: start},
	}
	for _, msg := range bad {
		require.NoError(t, f.stores.DelayedMessages.Create(ctx, msg))
	}
	f.enqueue(t, emailPayload("ana@example.com"), 0)

	res, err := f.service.SendDue(ctx, f.clk.Now(), logbuffer.Discard)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1, Unsent: 3}, res)

	for _, msg := range bad {
		loaded, err := f.stores.DelayedMessages.FindByPk(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DelayedMessageStatusPending, loaded.Status)
		assert.Equal(t, 1, loaded.Attempts)
	}
	f.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendDue_HonoursCancellation(t *testing.T) {
	f := newFixture(t, Config{})
	f.enqueue(t, emailPayload("ana@example.com"), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.service.SendDue(ctx, f.clk.Now(), logbuffer.Discard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Result{}, res)
	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

type failingUpdates struct {
	repository.DelayedMessageRepository
}

func (failingUpdates) Update(context.Context, *model.DelayedMessage) error {
	return errors.New("connection reset")
}

func TestSendDue_PropagatesPersistenceFailure(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.enqueue(t, emailPayload("ana@example.com"), 0)
	f.enqueue(t, emailPayload("ben@example.com"), 0)

	svc := NewService(failingUpdates{f.stores.DelayedMessages}, nil, f.email, f.clk, logger.Nop(), Config{})
	_, err := svc.SendDue(ctx, f.clk.Now(), logbuffer.Discard)
	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))
	f.email.AssertNumberOfCalls(t, "Send", 1)
}

func TestEnqueue_Validation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name    string
		payload model.DelayedPayload
		delay   int
	}{
		{"nil payload", nil, 0},
		{"negative delay", emailPayload("ana@example.com"), -1},
		{"bad recipient", emailPayload("ana"), 0},
		{"missing phone", smsPayload(""), 0},
		{"unknown sms type", model.SmsPayload{SmsMessageType: "PROMO", PhoneNumber: "+1", Message: "x"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Enqueue(ctx, tt.payload, tt.delay)
			assert.Equal(t, apperrors.ErrInvalidPayload, apperrors.CodeOf(err))
		})
	}

	n, err := f.service.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	msg := f.enqueue(t, smsPayload("+639171111111"), 45)
	assert.Equal(t, model.DelayedMessageTypeSMS, msg.Type)
	assert.Equal(t, start.Add(45*time.Minute), msg.ScheduledAt())
	decoded, err := msg.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, smsPayload("+639171111111"), decoded)
}
