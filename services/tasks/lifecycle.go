package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tutorbook/models"

	"github.com/hibiken/asynq"
)

const (
	TypeExpirePayment = "booking:expire_payment"
	TypeStartSession  = "booking:start_session"
	TypeAutoRelease   = "booking:auto_release"
)

// Scheduler queues the timed steps of a booking's lifecycle. The handlers
// re-check state when they fire, so an early, late or duplicate delivery is
// harmless.
type Scheduler interface {
	Schedule(ctx context.Context, taskType, bookingID string, fireAt time.Time) error
}

func NewLifecycleTask(taskType, bookingID string, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(models.TaskPayload{BookingID: bookingID, FireAt: fireAt})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(taskType, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		// One queued task per booking and step.
		asynq.TaskID(taskType + ":" + bookingID + ":" + fireAt.UTC().Format(time.RFC3339)),
		asynq.MaxRetry(5),
	}
	return task, opts, nil
}

func ParsePayload(task *asynq.Task) (models.TaskPayload, error) {
	var p models.TaskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid %s payload: %w", task.Type(), err)
	}
	return p, nil
}

// AsynqScheduler enqueues lifecycle tasks in Redis.
type AsynqScheduler struct {
	Client *asynq.Client
}

func NewAsynqScheduler(opt asynq.RedisClientOpt) *AsynqScheduler {
	return &AsynqScheduler{Client: asynq.NewClient(opt)}
}

func (s *AsynqScheduler) Schedule(ctx context.Context, taskType, bookingID string, fireAt time.Time) error {
	task, opts, err := NewLifecycleTask(taskType, bookingID, fireAt)
	if err != nil {
		return err
	}
	if _, err := s.Client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue %s for booking %s: %w", taskType, bookingID, err)
	}
	return nil
}

func (s *AsynqScheduler) Close() error {
	return s.Client.Close()
}

// NoopScheduler relies on the periodic sweep alone.
type NoopScheduler struct{}

func (NoopScheduler) Schedule(context.Context, string, string, time.Time) error { return nil }
