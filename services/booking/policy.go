package booking

import (
	"time"

	"tutorbook/models"
	"tutorbook/utils"
)

// RefundFor decides how much of gross goes back to the learner when a
// booking is cancelled. It has no side effects.
//
// Nothing is refunded for an unpaid booking. A tutor, operator or the system
// cancelling refunds in full. A learner is refunded in full outside the
// cancel window and PartialRefundPercent inside it. No one may cancel once
// the session has started.
func RefundFor(actor models.Actor, untilStart time.Duration, cur models.BookingState, gross int64, p models.Policy) (int64, error) {
	if untilStart <= 0 {
		return 0, &utils.InvalidTransitionError{Current: cur.String(), Attempted: "cancel after session start"}
	}
	if cur.Payment == models.PaymentEscrow {
		return 0, nil
	}
	if actor != models.ActorLearner {
		return gross, nil
	}
	if untilStart > p.CancelWindow {
		return gross, nil
	}
	pct := min(max(p.PartialRefundPercent, 0), 100)
	return gross * pct / 100, nil
}
