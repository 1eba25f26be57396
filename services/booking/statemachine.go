package booking

import (
	"tutorbook/models"
	"tutorbook/utils"
)

type Event string

const (
	EventPaymentConfirmed  Event = "payment_confirmed"
	EventPaymentFailed     Event = "payment_failed"
	EventExpirePayment     Event = "expire_payment"
	EventAccept            Event = "accept"
	EventReject            Event = "reject"
	EventCancel            Event = "cancel"
	EventStartSession      Event = "start_session"
	EventMarkComplete      Event = "mark_complete"
	EventConfirmCompletion Event = "confirm_completion"
	EventAutoRelease       Event = "auto_release"
	EventDispute           Event = "dispute"
	EventResolveRelease    Event = "resolve_release"
	EventResolveRefund     Event = "resolve_refund"
)

func state(s models.BookingStatus, p models.PaymentStatus) models.BookingState {
	return models.BookingState{Status: s, Payment: p}
}

var (
	pendingEscrow     = state(models.StatusPending, models.PaymentEscrow)
	pendingHeld       = state(models.StatusPending, models.PaymentHeld)
	acceptedHeld      = state(models.StatusAccepted, models.PaymentHeld)
	inProgressHeld    = state(models.StatusInProgress, models.PaymentHeld)
	completedHeld     = state(models.StatusCompleted, models.PaymentHeld)
	completedReleased = state(models.StatusCompleted, models.PaymentReleased)
	disputedHeld      = state(models.StatusDisputed, models.PaymentHeld)
	rejectedRefunded  = state(models.StatusRejected, models.PaymentRefunded)
	cancelledRefunded = state(models.StatusCancelled, models.PaymentRefunded)
)

// LegalStates lists every (status, payment) pair a booking may sit in.
var LegalStates = []models.BookingState{
	pendingEscrow, pendingHeld, acceptedHeld, inProgressHeld, completedHeld,
	completedReleased, disputedHeld, rejectedRefunded, cancelledRefunded,
}

// transitions maps each event to the states it may fire from and where it
// leads. Anything absent is illegal.
var transitions = map[Event]map[models.BookingState]models.BookingState{
	EventPaymentConfirmed: {pendingEscrow: pendingHeld},
	EventPaymentFailed:    {pendingEscrow: cancelledRefunded},
	EventExpirePayment:    {pendingEscrow: cancelledRefunded},
	EventAccept: {
		pendingEscrow: pendingEscrow, // pre-acceptance
		pendingHeld:   acceptedHeld,
	},
	EventReject: {
		pendingEscrow: rejectedRefunded,
		pendingHeld:   rejectedRefunded,
	},
	EventCancel: {
		pendingEscrow: cancelledRefunded,
		pendingHeld:   cancelledRefunded,
		acceptedHeld:  cancelledRefunded,
	},
	EventStartSession: {
		acceptedHeld: inProgressHeld,
		pendingHeld:  rejectedRefunded, // never accepted
	},
	EventMarkComplete: {
		acceptedHeld:   completedHeld,
		inProgressHeld: completedHeld,
	},
	EventConfirmCompletion: {
		acceptedHeld:   completedReleased,
		inProgressHeld: completedReleased,
		completedHeld:  completedReleased,
	},
	EventAutoRelease: {
		acceptedHeld:   completedReleased,
		inProgressHeld: completedReleased,
		completedHeld:  completedReleased,
	},
	EventDispute: {
		acceptedHeld:   disputedHeld,
		inProgressHeld: disputedHeld,
		completedHeld:  disputedHeld,
	},
	EventResolveRelease: {disputedHeld: completedReleased},
	EventResolveRefund:  {disputedHeld: cancelledRefunded},
}

// Next returns the state ev leads to from cur. A confirmed payment on a
// pre-accepted booking goes straight to accepted.
func Next(cur models.BookingState, ev Event, preAccepted bool) (models.BookingState, error) {
	to, ok := transitions[ev][cur]
	if !ok {
		return models.BookingState{}, &utils.InvalidTransitionError{Current: cur.String(), Attempted: string(ev)}
	}
	if ev == EventPaymentConfirmed && preAccepted {
		return acceptedHeld, nil
	}
	return to, nil
}

// Events lists every event the machine knows.
func Events() []Event {
	out := make([]Event, 0, len(transitions))
	for ev := range transitions {
		out = append(out, ev)
	}
	return out
}

// IsLegal reports whether s is one of LegalStates.
func IsLegal(s models.BookingState) bool {
	for _, l := range LegalStates {
		if l == s {
			return true
		}
	}
	return false
}
