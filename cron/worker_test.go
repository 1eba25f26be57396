package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"tutorbook/models"
	"tutorbook/services/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLifecycleTaskHandler(t *testing.T) {
	var got []string
	apply := func(_ context.Context, bookingID string) (*models.Booking, error) {
		got = append(got, bookingID)
		if bookingID == "broken" {
			return nil, errors.New("store down")
		}
		return &models.Booking{ID: bookingID, Status: models.StatusCancelled, PaymentStatus: models.PaymentEscrow}, nil
	}
	h := handleLifecycleTask(zap.NewNop(), apply)

	task, _, err := tasks.NewLifecycleTask(tasks.TypeExpirePayment, "b-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))

	// Service errors are retried by asynq.
	task, _, err = tasks.NewLifecycleTask(tasks.TypeExpirePayment, "broken", time.Now())
	require.NoError(t, err)
	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	// A payload that cannot be decoded never will be.
	err = h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeExpirePayment, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	assert.Equal(t, []string{"b-1", "broken"}, got)
}

func TestLifecycleTaskIDsAreDeterministic(t *testing.T) {
	at := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	_, a, err := tasks.NewLifecycleTask(tasks.TypeStartSession, "b-1", at)
	require.NoError(t, err)
	_, b, err := tasks.NewLifecycleTask(tasks.TypeStartSession, "b-1", at)
	require.NoError(t, err)
	require.Len(t, a, len(b))
	for i := range a {
		assert.Equal(t, a[i].Value(), b[i].Value())
	}
}
