package booking

import (
	"context"
	"errors"
	"time"

	bookingRepo "tutorbook/database/repository/booking"
	"tutorbook/models"

	"go.uber.org/zap"
)

const sweepBatch = 100

// errNotDue makes a timer step a no-op: the booking moved on or the timer
// fired early.
var errNotDue = errors.New("timer not due")

func (s *DefaultBookingService) dueAt(ev Event, b *models.Booking) time.Time {
	switch ev {
	case EventExpirePayment:
		return b.PaymentDeadline
	case EventStartSession:
		return b.Start
	}
	return s.autoReleaseAt(b)
}

func (s *DefaultBookingService) timerStep(ev Event) step {
	st := step{
		event: ev,
		actor: models.ActorSystem,
		check: func(b *models.Booking, now time.Time) error {
			if _, ok := transitions[ev][b.State()]; !ok {
				return errNotDue
			}
			if now.Before(s.dueAt(ev, b)) {
				return errNotDue
			}
			return nil
		},
	}
	switch ev {
	case EventExpirePayment:
		st.reason = "payment deadline passed"
		st.effects = func(ctx context.Context, b *models.Booking, _, _ models.BookingState, now time.Time) error {
			b.CancelledBy, b.CancelReason = models.ActorSystem, st.reason
			if err := s.releaseCapacity(ctx, b); err != nil {
				return err
			}
			return s.closeUnpaid(ctx, b, models.ProviderExpired, now)
		}
	case EventStartSession:
		st.effects = func(ctx context.Context, b *models.Booking, _, to models.BookingState, _ time.Time) error {
			if to != rejectedRefunded {
				return nil
			}
			b.CancelledBy, b.CancelReason = models.ActorSystem, "not accepted before start"
			if err := s.releaseCapacity(ctx, b); err != nil {
				return err
			}
			return s.refund(ctx, b, b.Price)
		}
	case EventAutoRelease:
		st.reason = "completion grace elapsed"
		st.effects = s.completeEffects
	}
	return st
}

// fire runs a timer event and reports whether it moved the booking.
func (s *DefaultBookingService) fire(ctx context.Context, bookingID string, ev Event) (*models.Booking, bool, error) {
	out, err := s.run(ctx, bookingID, s.timerStep(ev))
	if errors.Is(err, errNotDue) {
		b, gerr := s.Store.Bookings.GetByID(ctx, bookingID)
		return b, false, gerr
	}
	if err != nil {
		return nil, false, err
	}
	if !out.applied {
		return out.booking, false, nil
	}

	b := out.booking
	switch ev {
	case EventExpirePayment:
		s.Gateway.CancelLink(ctx, b.OrderCode)
		s.notify(ctx, models.EventBookingCancelled, b, map[string]string{"cancelledBy": string(models.ActorSystem)})
	case EventStartSession:
		if b.Status == models.StatusRejected {
			s.notify(ctx, models.EventBookingRejected, b, nil)
		}
	case EventAutoRelease:
		s.notify(ctx, models.EventBookingCompleted, b, nil)
	}
	return b, true, nil
}

// ExpirePayment cancels a booking whose payment never arrived. It does
// nothing before the deadline or once the booking left pending/escrow.
func (s *DefaultBookingService) ExpirePayment(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, _, err := s.fire(ctx, bookingID, EventExpirePayment)
	return b, err
}

// StartSession moves an accepted booking in progress at its start time. A
// paid booking the tutor never answered is rejected and refunded instead.
func (s *DefaultBookingService) StartSession(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, _, err := s.fire(ctx, bookingID, EventStartSession)
	return b, err
}

// AutoRelease pays out a held booking once the completion grace after its
// end has passed without a dispute.
func (s *DefaultBookingService) AutoRelease(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, _, err := s.fire(ctx, bookingID, EventAutoRelease)
	return b, err
}

type sweep struct {
	query bookingRepo.DueQuery
	event Event
	count func(r *SweepReport)
}

// SweepDue fires every lifecycle timer whose moment has passed. It backs up
// the delayed task queue, so each booking may also be reached by its task;
// both paths are idempotent.
func (s *DefaultBookingService) SweepDue(ctx context.Context) (SweepReport, error) {
	now := s.Now()
	report := SweepReport{RanAt: now}
	releaseBefore := now.Add(-s.Policy.CompletionGrace)

	expired := func(r *SweepReport) { r.Expired++ }
	started := func(r *SweepReport) { r.Started++ }
	released := func(r *SweepReport) { r.Released++ }
	sweeps := []sweep{
		{bookingRepo.DueQuery{State: pendingEscrow, Field: bookingRepo.DuePaymentDeadline, Before: now, Limit: sweepBatch}, EventExpirePayment, expired},
		{bookingRepo.DueQuery{State: pendingHeld, Field: bookingRepo.DueStart, Before: now, Limit: sweepBatch}, EventStartSession, started},
		{bookingRepo.DueQuery{State: acceptedHeld, Field: bookingRepo.DueStart, Before: now, Limit: sweepBatch}, EventStartSession, started},
		{bookingRepo.DueQuery{State: inProgressHeld, Field: bookingRepo.DueEnd, Before: releaseBefore, Limit: sweepBatch}, EventAutoRelease, released},
		{bookingRepo.DueQuery{State: completedHeld, Field: bookingRepo.DueEnd, Before: releaseBefore, Limit: sweepBatch}, EventAutoRelease, released},
	}

	for _, sw := range sweeps {
		due, err := s.Store.Bookings.ListDue(ctx, sw.query)
		if err != nil {
			return report, err
		}
		for _, b := range due {
			_, moved, err := s.fire(ctx, b.ID, sw.event)
			if err != nil {
				report.Failed++
				s.Logger.Error("sweep step failed",
					zap.String("bookingId", b.ID),
					zap.String("event", string(sw.event)),
					zap.Error(err))
				continue
			}
			if moved {
				sw.count(&report)
			}
		}
	}
	if report.Expired+report.Started+report.Released+report.Failed > 0 {
		s.Logger.Info("lifecycle sweep",
			zap.Int("expired", report.Expired),
			zap.Int("started", report.Started),
			zap.Int("released", report.Released),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}
