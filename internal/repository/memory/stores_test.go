package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/model"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDelayedMessages_FindDue(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFixed(base)
	repo := NewDelayedMessageRepository(clk)

	for _, delay := range []int{0, 5, 10, 30} {
		require.NoError(t, repo.Create(ctx, &model.DelayedMessage{
			Type:         model.DelayedMessageTypeEmail,
			Payload:      json.RawMessage(`{}`),
			DelayMinutes: delay,
		}))
	}

	due, err := repo.FindDelayedMessagesToSend(ctx, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 3)
	for i, msg := range due {
		assert.Equal(t, int64(i+1), msg.ID)
		assert.Equal(t, model.DelayedMessageStatusPending, msg.Status)
	}

	due[0].Status = model.DelayedMessageStatusSent
	require.NoError(t, repo.Update(ctx, due[0]))

	due, err = repo.FindDelayedMessagesToSend(ctx, base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, 2)

	sent, err := repo.CountByStatus(ctx, model.DelayedMessageStatusSent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sent)
}

func TestDelayedMessages_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewDelayedMessageRepository(clock.NewFixed(base))

	msg := &model.DelayedMessage{Type: model.DelayedMessageTypeSMS}
	require.NoError(t, repo.Create(ctx, msg))

	loaded, err := repo.FindByPk(ctx, msg.ID)
	require.NoError(t, err)
	loaded.Attempts = 9

	again, err := repo.FindByPk(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Attempts)
}

func TestFindByPk_NotFound(t *testing.T) {
	stores := NewStores(clock.NewFixed(base))

	_, err := stores.SmsMessages.FindByPk(context.Background(), 42)
	assert.True(t, apperrors.IsNotFound(err))

	err = stores.Users.Update(context.Background(), &model.User{Base: model.Base{ID: 7}})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSmsMessages_FindIdled(t *testing.T) {
	ctx := context.Background()
	repo := NewSmsMessageRepository(clock.NewFixed(base))

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
		require.NoError(t, repo.Create(ctx, &model.SmsMessage{Type: f.typ, Status: f.status, Recipient: "+15550100"}))
	}

	watched := []model.SmsMessageType{model.SmsMessageTypeSendProfile, model.SmsMessageTypeResendProfile}

	idle, err := repo.FindIdledSmsMessages(ctx, base.Add(-time.Minute), watched...)
	require.NoError(t, err)
	assert.Empty(t, idle)

	idle, err = repo.FindIdledSmsMessages(ctx, base, watched...)
	require.NoError(t, err)
	require.Len(t, idle, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{idle[0].ID, idle[1].ID, idle[2].ID})

	idle, err = repo.FindIdledSmsMessages(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, idle)
}

func TestSentCards_FindByUserCreatedBetween(t *testing.T) {
	ctx := context.Background()
	repo := NewSentCardRepository(clock.NewFixed(base))

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Create(ctx, &model.SentCard{
			UserID:    1,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, repo.Create(ctx, &model.SentCard{UserID: 2, CreatedAt: base}))

	cards, err := repo.FindByUserCreatedBetween(ctx, 1, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Len(t, cards, 3)
	assert.Equal(t, cards[0].CreatedAt, cards[0].DateSent)
}

func TestSummaryEmails_LatestAndExists(t *testing.T) {
	ctx := context.Background()
	repo := NewSummaryEmailRepository(clock.NewFixed(base))

	latest, err := repo.FindLatest(ctx, 1, model.SummaryTypeDaily)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.Create(ctx, &model.SummaryEmail{UserID: 1, SummaryType: model.SummaryTypeDaily, CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, &model.SummaryEmail{UserID: 1, SummaryType: model.SummaryTypeDaily, CreatedAt: base.Add(24 * time.Hour), CardsIncludedOnEmail: 3}))

	latest, err = repo.FindLatest(ctx, 1, model.SummaryTypeDaily)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.CardsIncludedOnEmail)

	exists, err := repo.ExistsBetween(ctx, 1, model.SummaryTypeDaily, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsBetween(ctx, 2, model.SummaryTypeDaily, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUsers_Offsets(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(clock.NewFixed(base))

	users := []*model.User{
		{Username: "manila", TimezoneOffsetMinutes: 480, Active: true},
		{Username: "boston", TimezoneOffsetMinutes: -240, Active: true},
		{Username: "cebu", TimezoneOffsetMinutes: 480, Active: true},
		{Username: "dormant", TimezoneOffsetMinutes: 330, Active: false},
	}
	for _, u := range users {
		require.NoError(t, repo.Create(ctx, u))
	}

	offsets, err := repo.FindAllAvailableTimezoneOffset(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{-240, 480}, offsets)

	manila, err := repo.FindActiveByTimezoneOffset(ctx, 480)
	require.NoError(t, err)
	assert.Len(t, manila, 2)

	u, err := repo.FindByUsername(ctx, "boston")
	require.NoError(t, err)
	assert.Equal(t, model.AccountTypeFree, u.AccountType)
	assert.Equal(t, base, u.CreatedAt)

	assert.Error(t, repo.Create(ctx, &model.User{Username: "boston"}))
}
