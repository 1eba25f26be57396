package booking

import (
	"context"
	"time"

	"tutorbook/models"
	"tutorbook/services/tasks"
	"tutorbook/utils"

	"github.com/google/uuid"
)

// Decide is the tutor's accept or reject. Accepting an unpaid booking
// pre-accepts it so the payment confirms it directly.
func (s *DefaultBookingService) Decide(ctx context.Context, tutorID, bookingID string, accept bool, reason string) (*models.Booking, error) {
	if accept {
		out, err := s.run(ctx, bookingID, step{
			event: EventAccept,
			actor: models.ActorTutor,
			check: ownedBy(models.ActorTutor, tutorID),
			// A pre-accepted booking reaches accepted through payment.
			done: func(b *models.Booking) bool {
				return b.PreAccepted && b.Status == models.StatusAccepted
			},
			effects: func(_ context.Context, b *models.Booking, _, to models.BookingState, _ time.Time) error {
				if to == pendingEscrow {
					b.PreAccepted = true
					return nil
				}
				b.RoomID = newRoomID()
				return nil
			},
		})
		if err != nil {
			return nil, err
		}
		if out.applied && out.booking.Status == models.StatusAccepted {
			s.notify(ctx, models.EventBookingAccepted, out.booking, map[string]string{"roomId": out.booking.RoomID})
		}
		return out.booking, nil
	}

	out, err := s.run(ctx, bookingID, step{
		event:  EventReject,
		actor:  models.ActorTutor,
		reason: reason,
		check:  ownedBy(models.ActorTutor, tutorID),
		effects: func(ctx context.Context, b *models.Booking, from, _ models.BookingState, now time.Time) error {
			b.CancelledBy, b.CancelReason = models.ActorTutor, reason
			if err := s.releaseCapacity(ctx, b); err != nil {
				return err
			}
			if from.Payment == models.PaymentEscrow {
				return s.closeUnpaid(ctx, b, models.ProviderCancelled, now)
			}
			return s.refund(ctx, b, b.Price)
		},
	})
	if err != nil {
		return nil, err
	}
	if out.applied {
		if out.from.Payment == models.PaymentEscrow {
			s.Gateway.CancelLink(ctx, out.booking.OrderCode)
		}
		s.notify(ctx, models.EventBookingRejected, out.booking, nil)
	}
	return out.booking, nil
}

// Cancel applies the refund policy for the caller. Only the booking's
// learner, its tutor or an operator may cancel, and only before start.
func (s *DefaultBookingService) Cancel(ctx context.Context, caller Caller, bookingID, reason string) (*models.Booking, error) {
	out, err := s.run(ctx, bookingID, step{
		event:  EventCancel,
		actor:  caller.Role,
		reason: reason,
		check:  ownedBy(caller.Role, caller.ID),
		effects: func(ctx context.Context, b *models.Booking, from, _ models.BookingState, now time.Time) error {
			amount, err := RefundFor(caller.Role, b.Start.Sub(now), from, b.Price, s.Policy)
			if err != nil {
				return err
			}
			b.CancelledBy, b.CancelReason = caller.Role, reason
			if err := s.releaseCapacity(ctx, b); err != nil {
				return err
			}
			if from.Payment == models.PaymentEscrow {
				return s.closeUnpaid(ctx, b, models.ProviderCancelled, now)
			}
			return s.refund(ctx, b, amount)
		},
	})
	if err != nil {
		return nil, err
	}
	if out.applied {
		if out.from.Payment == models.PaymentEscrow {
			s.Gateway.CancelLink(ctx, out.booking.OrderCode)
		}
		s.notify(ctx, models.EventBookingCancelled, out.booking, map[string]string{"cancelledBy": string(caller.Role)})
	}
	return out.booking, nil
}

// MarkComplete is the tutor reporting the session done. Money stays held
// until the learner confirms or the grace period runs out.
func (s *DefaultBookingService) MarkComplete(ctx context.Context, tutorID, bookingID string) (*models.Booking, error) {
	out, err := s.run(ctx, bookingID, step{
		event: EventMarkComplete,
		actor: models.ActorTutor,
		check: func(b *models.Booking, now time.Time) error {
			if err := ownedBy(models.ActorTutor, tutorID)(b, now); err != nil {
				return err
			}
			if now.Before(b.Start) {
				return utils.NewValidationError("bookingId", "session has not started")
			}
			return nil
		},
		effects: func(_ context.Context, b *models.Booking, _, _ models.BookingState, now time.Time) error {
			b.CompletedAt = &now
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if out.applied {
		s.schedule(ctx, tasks.TypeAutoRelease, out.booking, s.autoReleaseAt(out.booking))
	}
	return out.booking, nil
}

// ConfirmCompletion is the learner releasing the tutor's payout.
func (s *DefaultBookingService) ConfirmCompletion(ctx context.Context, learnerID, bookingID string) (*models.Booking, error) {
	out, err := s.run(ctx, bookingID, step{
		event: EventConfirmCompletion,
		actor: models.ActorLearner,
		check: func(b *models.Booking, now time.Time) error {
			if err := ownedBy(models.ActorLearner, learnerID)(b, now); err != nil {
				return err
			}
			if now.Before(b.Start) {
				return utils.NewValidationError("bookingId", "session has not started")
			}
			return nil
		},
		effects: s.completeEffects,
	})
	if err != nil {
		return nil, err
	}
	if out.applied {
		s.notify(ctx, models.EventBookingCompleted, out.booking, nil)
	}
	return out.booking, nil
}

func (s *DefaultBookingService) completeEffects(ctx context.Context, b *models.Booking, _, _ models.BookingState, now time.Time) error {
	if b.CompletedAt == nil {
		b.CompletedAt = &now
	}
	return s.release(ctx, b)
}

// Dispute freezes the held payment until an operator resolves it. Either
// party may open one from acceptance until DisputeWindow after the session
// ends.
func (s *DefaultBookingService) Dispute(ctx context.Context, caller Caller, bookingID, reason string) (*models.Booking, error) {
	if reason == "" {
		return nil, utils.NewValidationError("reason", "is required")
	}
	if caller.Role != models.ActorLearner && caller.Role != models.ActorTutor {
		return nil, utils.NewValidationError("role", "only the learner or the tutor may open a dispute")
	}
	out, err := s.run(ctx, bookingID, step{
		event:  EventDispute,
		actor:  caller.Role,
		reason: reason,
		check: func(b *models.Booking, now time.Time) error {
			if err := ownedBy(caller.Role, caller.ID)(b, now); err != nil {
				return err
			}
			if now.After(b.End.Add(s.Policy.DisputeWindow)) {
				return &utils.InvalidTransitionError{Current: b.State().String(), Attempted: "dispute after the dispute window"}
			}
			return nil
		},
		effects: func(_ context.Context, b *models.Booking, _, _ models.BookingState, _ time.Time) error {
			b.DisputeReason = reason
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if out.applied {
		s.notify(ctx, models.EventBookingDisputed, out.booking, map[string]string{"reason": reason, "openedBy": string(caller.Role)})
	}
	return out.booking, nil
}

// ResolveDispute is the operator's ruling: release pays the tutor, refund
// returns the full price to the learner.
func (s *DefaultBookingService) ResolveDispute(ctx context.Context, operatorID, bookingID string, outcome Resolution, note string) (*models.Booking, error) {
	st := step{actor: models.ActorOperator, reason: note}
	switch outcome {
	case ResolveRelease:
		st.event = EventResolveRelease
		st.effects = s.completeEffects
	case ResolveRefund:
		st.event = EventResolveRefund
		st.effects = func(ctx context.Context, b *models.Booking, _, _ models.BookingState, now time.Time) error {
			b.CancelledBy, b.CancelReason = models.ActorOperator, note
			if now.Before(b.Start) {
				if err := s.releaseCapacity(ctx, b); err != nil {
					return err
				}
			}
			return s.refund(ctx, b, b.Price)
		}
	default:
		return nil, utils.NewValidationError("outcome", "must be %q or %q", ResolveRelease, ResolveRefund)
	}

	out, err := s.run(ctx, bookingID, st)
	if err != nil {
		return nil, err
	}
	if out.applied {
		t := models.EventBookingCompleted
		if outcome == ResolveRefund {
			t = models.EventBookingCancelled
		}
		s.notify(ctx, t, out.booking, map[string]string{"resolvedBy": operatorID})
	}
	return out.booking, nil
}

func (s *DefaultBookingService) autoReleaseAt(b *models.Booking) time.Time {
	return b.End.Add(s.Policy.CompletionGrace)
}

func newRoomID() string {
	return "room-" + uuid.New().String()
}
