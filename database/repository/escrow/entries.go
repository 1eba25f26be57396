// File: database/repository/escrow/entries.go
package escrowRepo

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

func (r *mongoEscrowRepo) CreateEntry(ctx context.Context, e *models.EscrowEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.entries.InsertOne(ctx, e); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &utils.ConcurrencyConflictError{Resource: "escrow entry for booking " + e.BookingID}
		}
		return fmt.Errorf("insert escrow entry failed: %w", err)
	}
	return nil
}

func (r *mongoEscrowRepo) findEntry(ctx context.Context, filter bson.M, id string) (*models.EscrowEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var e models.EscrowEntry
	if err := r.entries.FindOne(ctx, filter).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &utils.NotFoundError{Resource: "escrow entry", ID: id}
		}
		return nil, fmt.Errorf("find escrow entry failed: %w", err)
	}
	return &e, nil
}

func (r *mongoEscrowRepo) GetEntry(ctx context.Context, id string) (*models.EscrowEntry, error) {
	return r.findEntry(ctx, bson.M{"id": id}, id)
}

func (r *mongoEscrowRepo) GetEntryByBooking(ctx context.Context, bookingID string) (*models.EscrowEntry, error) {
	return r.findEntry(ctx, bson.M{"bookingId": bookingID}, bookingID)
}

func (r *mongoEscrowRepo) UpdateEntry(ctx context.Context, e *models.EscrowEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	expected := e.Version
	e.Version++
	res, err := r.entries.ReplaceOne(ctx, bson.M{"id": e.ID, "version": expected}, e)
	if err != nil {
		e.Version = expected
		return fmt.Errorf("update escrow entry failed: %w", err)
	}
	if res.MatchedCount == 0 {
		e.Version = expected
		return &utils.ConcurrencyConflictError{Resource: "escrow entry " + e.ID}
	}
	return nil
}

// ListEntries returns a tutor's entries oldest first, optionally limited to
// some buckets.
func (r *mongoEscrowRepo) ListEntries(ctx context.Context, tutorID string, buckets ...models.Bucket) ([]models.EscrowEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"tutorId": tutorID}
	if len(buckets) > 0 {
		filter["bucket"] = bson.M{"$in": buckets}
	}
	cur, err := r.entries.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch escrow entries: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.EscrowEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding escrow entries: %w", err)
	}
	return out, nil
}
