package cron

import (
	"context"
	"fmt"
	"time"

	"tutorbook/config"
	"tutorbook/models"
	"tutorbook/services/booking"
	"tutorbook/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskRedisOpt is the asynq connection shared by the scheduler and the worker.
func TaskRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisTaskDB,
	}
}

// NewLifecycleMux routes each delayed lifecycle task to the booking service.
func NewLifecycleMux(svc booking.BookingService, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeExpirePayment, handleLifecycleTask(logger, svc.ExpirePayment))
	mux.HandleFunc(tasks.TypeStartSession, handleLifecycleTask(logger, svc.StartSession))
	mux.HandleFunc(tasks.TypeAutoRelease, handleLifecycleTask(logger, svc.AutoRelease))
	return mux
}

// InitLifecycleWorker runs the asynq worker in the background and returns
// the server so main can shut it down.
func InitLifecycleWorker(svc booking.BookingService, logger *zap.Logger) *asynq.Server {
	srv := asynq.NewServer(
		TaskRedisOpt(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := NewLifecycleMux(svc, logger)

	go monitorRedisConnection(logger)

	go func() {
		logger.Info("starting lifecycle worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Run(mux)
			if err == nil {
				return
			}
			logger.Error("lifecycle worker failed to start", zap.Int("attempt", attempts), zap.Error(err))
			if attempts == maxAttempts {
				logger.Fatal("lifecycle worker: max retry attempts reached")
			}
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}()
	return srv
}

func handleLifecycleTask(logger *zap.Logger, apply func(ctx context.Context, bookingID string) (*models.Booking, error)) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := tasks.ParsePayload(task)
		if err != nil {
			logger.Error("invalid lifecycle task payload", zap.String("task", task.Type()), zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		b, err := apply(ctx, p.BookingID)
		if err != nil {
			logger.Error("lifecycle task failed", zap.String("task", task.Type()), zap.String("bookingId", p.BookingID), zap.Error(err))
			return err
		}
		logger.Debug("lifecycle task done", zap.String("task", task.Type()), zap.String("bookingId", p.BookingID), zap.String("state", b.State().String()))
		return nil
	}
}

// monitorRedisConnection pings the task Redis periodically to surface outages.
func monitorRedisConnection(logger *zap.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisTaskDB,
	})

	ctx := context.Background()
	for {
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("task redis connection lost", zap.Error(err))
		}
		time.Sleep(10 * time.Second)
	}
}
