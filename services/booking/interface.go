package booking

import (
	"context"
	"time"

	"tutorbook/models"
)

// BookingService owns every booking's lifecycle. Each mutating call returns
// the updated booking or a typed error from utils.
type BookingService interface {
	CreateBooking(ctx context.Context, in CreateBookingInput) (*BookingResult, error)
	Get(ctx context.Context, caller Caller, bookingID string) (*models.Booking, error)
	List(ctx context.Context, caller Caller) ([]models.Booking, error)

	Decide(ctx context.Context, tutorID, bookingID string, accept bool, reason string) (*models.Booking, error)
	Cancel(ctx context.Context, caller Caller, bookingID, reason string) (*models.Booking, error)
	MarkComplete(ctx context.Context, tutorID, bookingID string) (*models.Booking, error)
	ConfirmCompletion(ctx context.Context, learnerID, bookingID string) (*models.Booking, error)
	Dispute(ctx context.Context, caller Caller, bookingID, reason string) (*models.Booking, error)
	ResolveDispute(ctx context.Context, operatorID, bookingID string, outcome Resolution, note string) (*models.Booking, error)

	ApplyPaymentEvent(ctx context.Context, ev *models.PaymentEvent) (*models.Booking, error)
	VerifyPayment(ctx context.Context, caller Caller, orderCode string) (*models.Booking, error)

	ExpirePayment(ctx context.Context, bookingID string) (*models.Booking, error)
	StartSession(ctx context.Context, bookingID string) (*models.Booking, error)
	AutoRelease(ctx context.Context, bookingID string) (*models.Booking, error)
	SweepDue(ctx context.Context) (SweepReport, error)
}

// Caller is the authenticated subject behind a request.
type Caller struct {
	ID   string
	Role models.Actor
}

type CreateBookingInput struct {
	LearnerID string               `json:"-"`
	Target    models.BookingTarget `json:"target"`
	Notes     string               `json:"notes"`
}

type BookingResult struct {
	Booking *models.Booking     `json:"booking"`
	Payment *models.PaymentLink `json:"payment"`
}

type Resolution string

const (
	ResolveRelease Resolution = "release"
	ResolveRefund  Resolution = "refund"
)

// SweepReport counts what one sweep applied.
type SweepReport struct {
	Expired  int       `json:"expired"`
	Started  int       `json:"started"`
	Released int       `json:"released"`
	Failed   int       `json:"failed"`
	RanAt    time.Time `json:"ranAt"`
}
