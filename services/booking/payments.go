package booking

import (
	"context"
	"strings"
	"time"

	"tutorbook/models"
	"tutorbook/services/tasks"

	"go.uber.org/zap"
)

func paymentKey(ev *models.PaymentEvent) string {
	return "payment:" + ev.OrderCode + ":" + string(ev.Status)
}

// ApplyPaymentEvent applies a verified provider event to its booking. Every
// redelivery of the same event leaves the booking and the ledger as the
// first delivery did.
func (s *DefaultBookingService) ApplyPaymentEvent(ctx context.Context, ev *models.PaymentEvent) (*models.Booking, error) {
	if ev.Status == models.ProviderPending {
		if err := s.Store.Payments.AppendPayload(ctx, ev.OrderCode, ev.Source); err != nil {
			return nil, err
		}
		return s.Store.Bookings.GetByID(ctx, ev.BookingID)
	}
	if ev.Duplicate {
		s.Logger.Info("duplicate payment event ignored",
			zap.String("orderCode", ev.OrderCode),
			zap.String("status", string(ev.Status)))
		return s.Store.Bookings.GetByID(ctx, ev.BookingID)
	}

	release, err := s.Locker.Acquire(ctx, "booking:"+ev.BookingID)
	if err != nil {
		return nil, err
	}
	defer release()

	var out *outcome
	err = s.Store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		out = nil
		rec, err := s.Store.Payments.GetByOrderCode(ctx, ev.OrderCode)
		if err != nil {
			return err
		}
		b, err := s.Store.Bookings.GetByID(ctx, rec.BookingID)
		if err != nil {
			return err
		}
		noop := &outcome{booking: b, from: b.State()}

		if rec.Status == ev.Status {
			out = noop
			return nil
		}
		if rec.Status == models.ProviderPaid {
			s.Logger.Warn("payment event after PAID ignored",
				zap.String("orderCode", rec.OrderCode),
				zap.String("bookingId", b.ID),
				zap.String("status", string(ev.Status)))
			out = noop
			return s.Store.Payments.AppendPayload(ctx, rec.OrderCode, ev.Source)
		}

		live := rec.Status == models.ProviderPending && b.State() == pendingEscrow && b.OrderCode == rec.OrderCode
		switch ev.Status {
		case models.ProviderPaid:
			if !live {
				if _, err := s.Store.Payments.TransitionStatus(ctx, rec.OrderCode, rec.Status, models.ProviderPaid, ev.Source, true); err != nil {
					return err
				}
				s.Logger.Error("late payment needs manual refund",
					zap.String("orderCode", rec.OrderCode),
					zap.String("bookingId", b.ID),
					zap.String("bookingState", b.State().String()),
					zap.Int64("amount", rec.Amount))
				out = noop
				return nil
			}
			if _, err := s.Store.Payments.TransitionStatus(ctx, rec.OrderCode, models.ProviderPending, models.ProviderPaid, ev.Source, false); err != nil {
				return err
			}
			out, err = s.apply(ctx, b, step{
				event: EventPaymentConfirmed,
				actor: models.ActorProvider,
				key:   paymentKey(ev),
				effects: func(ctx context.Context, b *models.Booking, _, to models.BookingState, _ time.Time) error {
					entry, err := s.Ledger.Credit(ctx, b.TutorID, b.ID, b.Price)
					if err != nil {
						return err
					}
					b.EscrowEntryID = entry.ID
					if to == acceptedHeld {
						b.RoomID = newRoomID()
					}
					return nil
				},
			})
			return err

		case models.ProviderCancelled, models.ProviderExpired:
			if !live {
				out = noop
				return s.Store.Payments.AppendPayload(ctx, rec.OrderCode, ev.Source)
			}
			if _, err := s.Store.Payments.TransitionStatus(ctx, rec.OrderCode, models.ProviderPending, ev.Status, ev.Source, false); err != nil {
				return err
			}
			reason := "payment " + strings.ToLower(string(ev.Status))
			out, err = s.apply(ctx, b, step{
				event:  EventPaymentFailed,
				actor:  models.ActorProvider,
				reason: reason,
				key:    paymentKey(ev),
				effects: func(ctx context.Context, b *models.Booking, _, _ models.BookingState, _ time.Time) error {
					b.CancelledBy, b.CancelReason = models.ActorProvider, reason
					return s.releaseCapacity(ctx, b)
				},
			})
			return err
		}
		out = noop
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Gateway.MarkApplied(ctx, ev)
	if !out.applied {
		return out.booking, nil
	}
	b := out.booking
	switch ev.Status {
	case models.ProviderPaid:
		s.notify(ctx, models.EventPaymentConfirmed, b, map[string]string{"orderCode": b.OrderCode})
		if b.Status == models.StatusAccepted {
			s.notify(ctx, models.EventBookingAccepted, b, map[string]string{"roomId": b.RoomID})
		}
		s.schedule(ctx, tasks.TypeStartSession, b, b.Start)
		s.schedule(ctx, tasks.TypeAutoRelease, b, s.autoReleaseAt(b))
	default:
		s.notify(ctx, models.EventBookingCancelled, b, map[string]string{"cancelledBy": string(models.ActorProvider)})
	}
	return b, nil
}

// VerifyPayment polls the provider for a booking's order on behalf of its
// learner, tutor or an operator, and applies the answer like a webhook.
func (s *DefaultBookingService) VerifyPayment(ctx context.Context, caller Caller, orderCode string) (*models.Booking, error) {
	rec, err := s.Store.Payments.GetByOrderCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, caller, rec.BookingID); err != nil {
		return nil, err
	}
	ev, err := s.Gateway.VerifyByOrderCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	return s.ApplyPaymentEvent(ctx, ev)
}
