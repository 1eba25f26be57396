// File: database/repository/booking/interface.go
package bookingRepo

import (
	"context"
	"time"

	"tutorbook/database"
	"tutorbook/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// DueField names the timestamp a due query compares against.
type DueField string

const (
	DuePaymentDeadline DueField = "paymentDeadline"
	DueStart           DueField = "start"
	DueEnd             DueField = "end"
)

// DueQuery selects bookings in one state whose Field is before Before.
type DueQuery struct {
	State  models.BookingState
	Field  DueField
	Before time.Time
	Limit  int
}

type BookingRepository interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	// Update persists b if its stored version still equals b.Version and
	// bumps b.Version on success.
	Update(ctx context.Context, b *models.Booking) error
	ListByLearner(ctx context.Context, learnerID string) ([]models.Booking, error)
	ListByTutor(ctx context.Context, tutorID string) ([]models.Booking, error)
	ListDue(ctx context.Context, q DueQuery) ([]models.Booking, error)
}

type mongoBookingRepo struct {
	coll *mongo.Collection
}

// NewMongoBookingRepo constructs a new MongoDB BookingRepository.
func NewMongoBookingRepo() BookingRepository {
	return &mongoBookingRepo{coll: database.DB().Collection("bookings")}
}
