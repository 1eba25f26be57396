// File: database/repository/escrow/balances.go
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

func (r *mongoEscrowRepo) GetBalance(ctx context.Context, tutorID string) (*models.TutorBalance, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var b models.TutorBalance
	if err := r.balances.FindOne(ctx, bson.M{"tutorId": tutorID}).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &models.TutorBalance{TutorID: tutorID}, nil
		}
		return nil, fmt.Errorf("find tutor balance failed: %w", err)
	}
	return &b, nil
}

// ApplyDelta increments the balance in one server-side update. Guards on
// available and pending are part of the filter, so a decrement that would
// overdraw matches nothing instead of racing a concurrent writer.
func (r *mongoEscrowRepo) ApplyDelta(ctx context.Context, tutorID string, d models.BalanceDelta) (*models.TutorBalance, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	guarded := d.MinAvailable > 0 || d.MinPending > 0
	filter := bson.M{"tutorId": tutorID}
	if d.MinAvailable > 0 {
		filter["available"] = bson.M{"$gte": d.MinAvailable}
	}
	if d.MinPending > 0 {
		filter["pending"] = bson.M{"$gte": d.MinPending}
	}
	update := bson.M{
		"$inc": bson.M{
			"pending":     d.Pending,
			"available":   d.Available,
			"totalEarned": d.TotalEarned,
			"onHold":      d.OnHold,
			"withdrawn":   d.Withdrawn,
			"version":     1,
		},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(!guarded)

	var b models.TutorBalance
	err := r.balances.FindOneAndUpdate(ctx, filter, update, opts).Decode(&b)
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("apply balance delta failed: %w", err)
	}

	current, gerr := r.GetBalance(ctx, tutorID)
	if gerr != nil {
		return nil, gerr
	}
	if d.MinAvailable > 0 && current.Available < d.MinAvailable {
		return nil, &utils.InsufficientBalanceError{TutorID: tutorID, Requested: d.MinAvailable, Available: current.Available}
	}
	return nil, fmt.Errorf("pending balance of tutor %s would go negative", tutorID)
}

func (r *mongoEscrowRepo) ListTutorIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	raw, err := r.entries.Distinct(ctx, "tutorId", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list tutor ids failed: %w", err)
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// EnsureIndexes keeps one entry per booking and one balance per tutor.
func EnsureIndexes(repo EscrowRepository) error {
	m, ok := repo.(*mongoEscrowRepo)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := m.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_id")},
		{Keys: bson.D{{Key: "bookingId", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_booking")},
		{Keys: bson.D{{Key: "tutorId", Value: 1}, {Key: "bucket", Value: 1}, {Key: "createdAt", Value: 1}}, Options: options.Index().SetName("tutor_bucket_idx")},
	}); err != nil {
		return fmt.Errorf("failed to create escrow entry indexes: %w", err)
	}
	if _, err := m.balances.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tutorId", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_tutor"),
	}); err != nil {
		return fmt.Errorf("failed to create balance indexes: %w", err)
	}
	return nil
}
