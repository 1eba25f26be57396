// File: database/repository/payment/crud.go
package paymentRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutorbook/models"
	"tutorbook/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *mongoPaymentRepo) Create(ctx context.Context, p *models.PaymentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &utils.ConcurrencyConflictError{Resource: "payment record for booking " + p.BookingID}
		}
		return fmt.Errorf("insert payment record failed: %w", err)
	}
	return nil
}

func (r *mongoPaymentRepo) findOne(ctx context.Context, filter bson.M, id string) (*models.PaymentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var p models.PaymentRecord
	if err := r.coll.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &utils.NotFoundError{Resource: "payment record", ID: id}
		}
		return nil, fmt.Errorf("find payment record failed: %w", err)
	}
	return &p, nil
}

func (r *mongoPaymentRepo) GetByOrderCode(ctx context.Context, orderCode string) (*models.PaymentRecord, error) {
	return r.findOne(ctx, bson.M{"orderCode": orderCode}, orderCode)
}

func (r *mongoPaymentRepo) ActiveForBooking(ctx context.Context, bookingID string) (*models.PaymentRecord, error) {
	return r.findOne(ctx, bson.M{"bookingId": bookingID, "status": models.ProviderPending}, bookingID)
}

func (r *mongoPaymentRepo) SetLink(ctx context.Context, orderCode, providerRef, redirectURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.UpdateOne(ctx, bson.M{"orderCode": orderCode}, bson.M{"$set": bson.M{
		"providerRef": providerRef,
		"redirectUrl": redirectURL,
		"updatedAt":   time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("set payment link failed: %w", err)
	}
	return nil
}

func (r *mongoPaymentRepo) TransitionStatus(ctx context.Context, orderCode string, from, to models.ProviderStatus, ev models.ProviderEvent, late bool) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{"status": to, "updatedAt": time.Now().UTC()}
	if late {
		set["late"] = true
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"orderCode": orderCode, "status": from},
		bson.M{"$set": set, "$push": bson.M{"payloads": ev}})
	if err != nil {
		return false, fmt.Errorf("transition payment record failed: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *mongoPaymentRepo) AppendPayload(ctx context.Context, orderCode string, ev models.ProviderEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.UpdateOne(ctx, bson.M{"orderCode": orderCode}, bson.M{"$push": bson.M{"payloads": ev}})
	if err != nil {
		return fmt.Errorf("append payment payload failed: %w", err)
	}
	return nil
}

// EnsureIndexes makes order codes globally unique and allows only one
// pending record per booking.
func EnsureIndexes(repo PaymentRepository) error {
	m, ok := repo.(*mongoPaymentRepo)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderCode", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_order_code"),
		},
		{
			Keys: bson.D{{Key: "bookingId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("one_pending_per_booking").
				SetPartialFilterExpression(bson.M{"status": models.ProviderPending}),
		},
	}
	if _, err := m.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}
