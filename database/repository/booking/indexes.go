package bookingRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the booking indexes used by lookups and the sweeper.
func EnsureIndexes(repo BookingRepository) error {
	m, ok := repo.(*mongoBookingRepo)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		{
			Keys:    bson.D{{Key: "learnerId", Value: 1}, {Key: "start", Value: -1}},
			Options: options.Index().SetName("learner_start_idx"),
		},
		{
			Keys:    bson.D{{Key: "tutorId", Value: 1}, {Key: "start", Value: -1}},
			Options: options.Index().SetName("tutor_start_idx"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "paymentStatus", Value: 1}, {Key: "paymentDeadline", Value: 1}},
			Options: options.Index().SetName("state_deadline_idx"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "paymentStatus", Value: 1}, {Key: "end", Value: 1}},
			Options: options.Index().SetName("state_end_idx"),
		},
	}
	if _, err := m.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}
