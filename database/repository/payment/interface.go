// File: database/repository/payment/interface.go
package paymentRepo

import (
	"context"

	"tutorbook/database"
	"tutorbook/models"

	"go.mongodb.org/mongo-driver/mongo"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *models.PaymentRecord) error
	GetByOrderCode(ctx context.Context, orderCode string) (*models.PaymentRecord, error)
	// ActiveForBooking returns the booking's non-terminal record, if any.
	ActiveForBooking(ctx context.Context, bookingID string) (*models.PaymentRecord, error)
	SetLink(ctx context.Context, orderCode, providerRef, redirectURL string) error
	// TransitionStatus moves a record from one provider status to another and
	// appends the event that caused it. It reports false when the record was
	// no longer in from.
	TransitionStatus(ctx context.Context, orderCode string, from, to models.ProviderStatus, ev models.ProviderEvent, late bool) (bool, error)
	AppendPayload(ctx context.Context, orderCode string, ev models.ProviderEvent) error
}

type mongoPaymentRepo struct {
	coll *mongo.Collection
}

// NewMongoPaymentRepo constructs a new MongoDB PaymentRepository.
func NewMongoPaymentRepo() PaymentRepository {
	return &mongoPaymentRepo{coll: database.DB().Collection("payment_records")}
}
