package booking

import (
	"context"
	"fmt"
	"time"

	"tutorbook/models"
	"tutorbook/services/payment"
	"tutorbook/services/tasks"
	"tutorbook/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxNotes = 1000

// target is a resolved booking target: what it costs, when it runs and the
// capacity it needs.
type target struct {
	tutorID string
	start   time.Time
	end     time.Time
	mode    models.TeachingMode
	price   int64
	reserve func(ctx context.Context) ([]string, error)
}

func (s *DefaultBookingService) resolveTarget(ctx context.Context, t models.BookingTarget) (*target, error) {
	switch t.Kind {
	case models.TargetSlot:
		if t.SlotID == "" {
			return nil, utils.NewValidationError("target.slotId", "is required")
		}
		occ, err := s.Slots.ResolveOccurrence(ctx, t.SlotID, t.OccurrenceStart)
		if err != nil {
			return nil, err
		}
		return &target{
			tutorID: occ.TutorID,
			start:   occ.Start,
			end:     occ.End,
			mode:    occ.Mode,
			price:   occ.Price,
			reserve: func(ctx context.Context) ([]string, error) {
				res, err := s.Slots.ReserveCapacity(ctx, t.SlotID, occ.Start)
				if err != nil {
					return nil, err
				}
				return []string{res.OccurrenceKey}, nil
			},
		}, nil

	case models.TargetAdHoc:
		if t.TutorID == "" {
			return nil, utils.NewValidationError("target.tutorId", "is required")
		}
		if t.Start.IsZero() || t.End.IsZero() {
			return nil, utils.NewValidationError("target.start", "start and end are required")
		}
		out := &target{tutorID: t.TutorID, start: t.Start.UTC(), end: t.End.UTC()}
		out.reserve = func(ctx context.Context) ([]string, error) {
			rr, err := s.Slots.ReserveRange(ctx, t.TutorID, t.Start, t.End)
			if err != nil {
				return nil, err
			}
			out.price, out.mode = rr.Price, rr.Mode
			keys := make([]string, len(rr.Reservations))
			for i, r := range rr.Reservations {
				keys[i] = r.OccurrenceKey
			}
			return keys, nil
		}
		return out, nil
	}
	return nil, utils.NewValidationError("target.kind", "must be %q or %q", models.TargetSlot, models.TargetAdHoc)
}

// CreateBooking reserves capacity, stores a pending booking with its
// payment record and asks the provider for a payment link. If no link can
// be issued the booking is cancelled again and its capacity returned.
func (s *DefaultBookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*BookingResult, error) {
	if in.LearnerID == "" {
		return nil, utils.NewValidationError("learnerId", "is required")
	}
	if len(in.Notes) > maxNotes {
		return nil, utils.NewValidationError("notes", "at most %d characters", maxNotes)
	}
	tgt, err := s.resolveTarget(ctx, in.Target)
	if err != nil {
		return nil, err
	}
	if tgt.tutorID == in.LearnerID {
		return nil, utils.NewValidationError("target", "tutors cannot book themselves")
	}

	orderCode, err := payment.NewOrderCode()
	if err != nil {
		return nil, err
	}
	now := s.Now()
	deadline := now.Add(s.Policy.PaymentTimeout)
	if tgt.start.Before(deadline) {
		deadline = tgt.start
	}

	var b *models.Booking
	err = s.Store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		keys, err := tgt.reserve(ctx)
		if err != nil {
			return err
		}
		b = &models.Booking{
			ID:              uuid.New().String(),
			LearnerID:       in.LearnerID,
			TutorID:         tgt.tutorID,
			Target:          in.Target,
			Start:           tgt.start,
			End:             tgt.end,
			Mode:            tgt.mode,
			Price:           tgt.price,
			Status:          models.StatusPending,
			PaymentStatus:   models.PaymentEscrow,
			Notes:           in.Notes,
			Reservations:    keys,
			OrderCode:       orderCode,
			PaymentDeadline: deadline,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		b.History = []models.TransitionRecord{{
			Key:   "create:" + b.ID,
			Event: "create",
			To:    b.State(),
			Actor: models.ActorLearner,
			At:    now,
		}}
		if err := s.Store.Bookings.Create(ctx, b); err != nil {
			return err
		}
		return s.Store.Payments.Create(ctx, &models.PaymentRecord{
			ID:        uuid.New().String(),
			OrderCode: orderCode,
			BookingID: b.ID,
			Amount:    b.Price,
			Currency:  s.Policy.Currency,
			Status:    models.ProviderPending,
			Provider:  s.Gateway.ProviderName(),
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	link, err := s.Gateway.CreatePaymentLink(ctx, b, deadline)
	if err != nil {
		if _, aerr := s.run(ctx, b.ID, step{
			event:  EventPaymentFailed,
			actor:  models.ActorSystem,
			reason: "payment link unavailable",
			effects: func(ctx context.Context, b *models.Booking, _, _ models.BookingState, now time.Time) error {
				b.CancelledBy, b.CancelReason = models.ActorSystem, "payment link unavailable"
				if err := s.releaseCapacity(ctx, b); err != nil {
					return err
				}
				return s.closeUnpaid(ctx, b, models.ProviderCancelled, now)
			},
		}); aerr != nil {
			// The expiry sweep still cancels it at the deadline.
			s.Logger.Error("could not abandon booking without payment link", zap.String("bookingId", b.ID), zap.Error(aerr))
		}
		return nil, fmt.Errorf("create payment link: %w", err)
	}

	s.schedule(ctx, tasks.TypeExpirePayment, b, deadline)
	s.notify(ctx, models.EventBookingCreated, b, map[string]string{"orderCode": b.OrderCode})
	s.Logger.Info("booking created",
		zap.String("bookingId", b.ID),
		zap.String("orderCode", b.OrderCode),
		zap.String("tutorId", b.TutorID),
		zap.Int64("price", b.Price))
	return &BookingResult{Booking: b, Payment: link}, nil
}
