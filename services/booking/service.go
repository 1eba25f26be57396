package booking

import (
	"context"
	"time"

	"tutorbook/database/repository"
	"tutorbook/models"
	"tutorbook/services/escrow"
	"tutorbook/services/notification"
	"tutorbook/services/payment"
	"tutorbook/services/slots"
	"tutorbook/services/tasks"
	"tutorbook/utils"

	"go.uber.org/zap"
)

// DefaultBookingService implements BookingService.
type DefaultBookingService struct {
	Store     *repository.Store
	Slots     slots.SlotService
	Ledger    escrow.Ledger
	Gateway   payment.Gateway
	Locker    utils.Locker
	Scheduler tasks.Scheduler
	Notifier  notification.NotificationService
	Policy    models.Policy
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewBookingService(
	store *repository.Store,
	slotSvc slots.SlotService,
	ledger escrow.Ledger,
	gateway payment.Gateway,
	locker utils.Locker,
	scheduler tasks.Scheduler,
	notifier notification.NotificationService,
	policy models.Policy,
	logger *zap.Logger,
) *DefaultBookingService {
	return &DefaultBookingService{
		Store:     store,
		Slots:     slotSvc,
		Ledger:    ledger,
		Gateway:   gateway,
		Locker:    locker,
		Scheduler: scheduler,
		Notifier:  notifier,
		Policy:    policy,
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// step describes one transition request.
type step struct {
	event  Event
	actor  models.Actor
	reason string
	// key overrides the default idempotency key.
	key string
	// done reports a booking already in the state the step targets.
	done func(b *models.Booking) bool
	// check runs against the freshly loaded booking before the table lookup.
	check func(b *models.Booking, now time.Time) error
	// effects runs the side effects of the move inside the transaction and
	// may set fields on b.
	effects func(ctx context.Context, b *models.Booking, from, to models.BookingState, now time.Time) error
}

// outcome is what a committed step leaves for post-commit work.
type outcome struct {
	booking *models.Booking
	applied bool
	from    models.BookingState
}

// run serialises the step behind the booking lock and commits it in one
// transaction.
func (s *DefaultBookingService) run(ctx context.Context, bookingID string, st step) (*outcome, error) {
	release, err := s.Locker.Acquire(ctx, "booking:"+bookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	var out *outcome
	err = s.Store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.Store.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		out, err = s.apply(ctx, b, st)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// apply performs st on an already loaded booking. It must run inside a
// transaction while the booking lock is held.
func (s *DefaultBookingService) apply(ctx context.Context, b *models.Booking, st step) (*outcome, error) {
	now := s.Now()
	if st.check != nil {
		if err := st.check(b, now); err != nil {
			return nil, err
		}
	}
	if (st.key != "" && b.HasApplied(st.key)) || (st.key == "" && b.Reached(string(st.event))) || (st.done != nil && st.done(b)) {
		return &outcome{booking: b, from: b.State()}, nil
	}

	from := b.State()
	to, err := Next(from, st.event, b.PreAccepted)
	if err != nil {
		return nil, err
	}
	if st.effects != nil {
		if err := st.effects(ctx, b, from, to, now); err != nil {
			if from.Payment != to.Payment {
				s.Logger.Error("money-moving transition failed",
					zap.String("bookingId", b.ID),
					zap.String("orderCode", b.OrderCode),
					zap.String("event", string(st.event)),
					zap.Error(err))
			}
			return nil, err
		}
	}

	key := st.key
	if key == "" {
		key = string(st.event) + ":" + b.ID + ":" + to.String()
	}
	b.History = append(b.History, models.TransitionRecord{
		Key:    key,
		Event:  string(st.event),
		From:   from,
		To:     to,
		Actor:  st.actor,
		Reason: st.reason,
		At:     now,
	})
	b.Status, b.PaymentStatus = to.Status, to.Payment
	b.UpdatedAt = now
	if err := s.Store.Bookings.Update(ctx, b); err != nil {
		return nil, err
	}
	s.Logger.Info("booking transition",
		zap.String("bookingId", b.ID),
		zap.String("event", string(st.event)),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("actor", string(st.actor)))
	return &outcome{booking: b, applied: true, from: from}, nil
}

// releaseCapacity returns every unit the booking holds.
func (s *DefaultBookingService) releaseCapacity(ctx context.Context, b *models.Booking) error {
	for _, key := range b.Reservations {
		if err := s.Slots.ReleaseCapacity(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// closeUnpaid ends the booking's pending payment record from our side.
func (s *DefaultBookingService) closeUnpaid(ctx context.Context, b *models.Booking, status models.ProviderStatus, now time.Time) error {
	if b.OrderCode == "" {
		return nil
	}
	_, err := s.Store.Payments.TransitionStatus(ctx, b.OrderCode, models.ProviderPending, status, models.ProviderEvent{
		OrderCode:  b.OrderCode,
		Status:     status,
		Raw:        `{"source":"engine"}`,
		ReceivedAt: now,
	}, false)
	return err
}

// refund settles a paid booking's escrow entry back to the learner.
func (s *DefaultBookingService) refund(ctx context.Context, b *models.Booking, amount int64) error {
	if b.EscrowEntryID == "" {
		return nil
	}
	if _, err := s.Ledger.RefundToLearner(ctx, b.EscrowEntryID, amount); err != nil {
		return err
	}
	b.RefundAmount = amount
	return nil
}

func (s *DefaultBookingService) release(ctx context.Context, b *models.Booking) error {
	if _, err := s.Ledger.Release(ctx, b.EscrowEntryID); err != nil {
		return err
	}
	return nil
}

func (s *DefaultBookingService) notify(ctx context.Context, t models.EventType, b *models.Booking, data map[string]string) {
	s.Notifier.Notify(ctx, models.DomainEvent{
		Type:       t,
		BookingID:  b.ID,
		LearnerID:  b.LearnerID,
		TutorID:    b.TutorID,
		Data:       data,
		OccurredAt: s.Now(),
	})
}

func (s *DefaultBookingService) schedule(ctx context.Context, taskType string, b *models.Booking, at time.Time) {
	if err := s.Scheduler.Schedule(ctx, taskType, b.ID, at); err != nil {
		// The sweeper picks it up instead.
		s.Logger.Warn("schedule lifecycle task failed", zap.String("task", taskType), zap.String("bookingId", b.ID), zap.Error(err))
	}
}

// Get returns a booking visible to the caller. Others see NotFoundError.
func (s *DefaultBookingService) Get(ctx context.Context, caller Caller, bookingID string) (*models.Booking, error) {
	b, err := s.Store.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canSee(caller, b) {
		return nil, &utils.NotFoundError{Resource: "booking", ID: bookingID}
	}
	return b, nil
}

func (s *DefaultBookingService) List(ctx context.Context, caller Caller) ([]models.Booking, error) {
	switch caller.Role {
	case models.ActorTutor:
		return s.Store.Bookings.ListByTutor(ctx, caller.ID)
	case models.ActorLearner:
		return s.Store.Bookings.ListByLearner(ctx, caller.ID)
	}
	return nil, utils.NewValidationError("role", "only learners and tutors have bookings")
}

func canSee(c Caller, b *models.Booking) bool {
	switch c.Role {
	case models.ActorOperator:
		return true
	case models.ActorLearner:
		return b.LearnerID == c.ID
	case models.ActorTutor:
		return b.TutorID == c.ID
	}
	return false
}

func ownedBy(role models.Actor, id string) func(b *models.Booking, now time.Time) error {
	return func(b *models.Booking, _ time.Time) error {
		if !canSee(Caller{ID: id, Role: role}, b) {
			return &utils.NotFoundError{Resource: "booking", ID: b.ID}
		}
		return nil
	}
}
