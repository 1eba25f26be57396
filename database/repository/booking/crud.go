// File: database/repository/booking/crud.go
package bookingRepo

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

func (r *mongoBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("insert booking failed: %w", err)
	}
	return nil
}

func (r *mongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var b models.Booking
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &utils.NotFoundError{Resource: "booking", ID: id}
		}
		return nil, fmt.Errorf("find booking failed: %w", err)
	}
	return &b, nil
}

func (r *mongoBookingRepo) Update(ctx context.Context, b *models.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	expected := b.Version
	b.Version++
	res, err := r.coll.ReplaceOne(ctx, bson.M{"id": b.ID, "version": expected}, b)
	if err != nil {
		b.Version = expected
		return fmt.Errorf("update booking failed: %w", err)
	}
	if res.MatchedCount == 0 {
		b.Version = expected
		return &utils.ConcurrencyConflictError{Resource: "booking " + b.ID}
	}
	return nil
}

func (r *mongoBookingRepo) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bookings: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.Booking
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	return out, nil
}

func (r *mongoBookingRepo) ListByLearner(ctx context.Context, learnerID string) ([]models.Booking, error) {
	return r.find(ctx, bson.M{"learnerId": learnerID}, options.Find().SetSort(bson.D{{Key: "start", Value: -1}}))
}

func (r *mongoBookingRepo) ListByTutor(ctx context.Context, tutorID string) ([]models.Booking, error) {
	return r.find(ctx, bson.M{"tutorId": tutorID}, options.Find().SetSort(bson.D{{Key: "start", Value: -1}}))
}

func (r *mongoBookingRepo) ListDue(ctx context.Context, q DueQuery) ([]models.Booking, error) {
	filter := bson.M{
		"status":        q.State.Status,
		"paymentStatus": q.State.Payment,
		string(q.Field): bson.M{"$lte": q.Before},
	}
	opts := options.Find().SetSort(bson.D{{Key: string(q.Field), Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return r.find(ctx, filter, opts)
}
