package notification

import (
	"context"
	"sync"

	"tutorbook/models"

	"go.uber.org/zap"
)

// NotificationService hands domain events to whatever delivers them.
// Delivery is best effort; a failure never reaches the caller's transaction.
type NotificationService interface {
	Notify(ctx context.Context, ev models.DomainEvent)
}

// Publisher is a sink that may fail, such as a message broker.
type Publisher interface {
	Publish(ctx context.Context, ev models.DomainEvent) error
}

// DefaultNotificationService publishes in the background and logs failures.
type DefaultNotificationService struct {
	Publisher Publisher
	Logger    *zap.Logger

	wg sync.WaitGroup
}

func NewDefaultNotificationService(pub Publisher, logger *zap.Logger) *DefaultNotificationService {
	return &DefaultNotificationService{Publisher: pub, Logger: logger}
}

func (s *DefaultNotificationService) Notify(ctx context.Context, ev models.DomainEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the request; the publish must outlive it.
		if err := s.Publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
			s.Logger.Warn("notification delivery failed",
				zap.String("type", string(ev.Type)),
				zap.String("bookingId", ev.BookingID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every in-flight publish has returned.
func (s *DefaultNotificationService) Wait() {
	s.wg.Wait()
}

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev models.DomainEvent) error {
	p.Logger.Info("domain event",
		zap.String("type", string(ev.Type)),
		zap.String("bookingId", ev.BookingID),
		zap.String("learnerId", ev.LearnerID),
		zap.String("tutorId", ev.TutorID),
		zap.Any("data", ev.Data))
	return nil
}

// Recorder keeps every event in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	Events []models.DomainEvent
}

func (r *Recorder) Notify(_ context.Context, ev models.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Type
	}
	return out
}
