// FILE: database/repository/slot/indexes.go
package slotRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes creates the indexes the slot queries and capacity guards rely on.
func (r *mongoSlotRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slotIdx := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		{
			Keys:    bson.D{{Key: "tutorId", Value: 1}, {Key: "start", Value: 1}},
			Options: options.Index().SetName("tutor_start_idx"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "start", Value: 1}},
			Options: options.Index().SetName("status_start_idx"),
		},
	}
	if _, err := r.slots.Indexes().CreateMany(ctx, slotIdx); err != nil {
		return fmt.Errorf("failed to create slot indexes: %w", err)
	}

	ruleIdx := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		{
			Keys:    bson.D{{Key: "tutorId", Value: 1}, {Key: "weekday", Value: 1}},
			Options: options.Index().SetName("tutor_weekday_idx"),
		},
	}
	if _, err := r.rules.Indexes().CreateMany(ctx, ruleIdx); err != nil {
		return fmt.Errorf("failed to create availability rule indexes: %w", err)
	}

	occIdx := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_key"),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "start", Value: 1}},
			Options: options.Index().SetName("owner_start_idx"),
		},
	}
	if _, err := r.occurrences.Indexes().CreateMany(ctx, occIdx); err != nil {
		return fmt.Errorf("failed to create occurrence indexes: %w", err)
	}
	return nil
}

func EnsureIndexes(repo SlotRepository) error {
	if m, ok := repo.(*mongoSlotRepo); ok {
		return m.ensureIndexes()
	}
	return nil
}
