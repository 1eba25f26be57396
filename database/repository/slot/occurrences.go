// File: database/repository/slot/occurrences.go
package slotRepo

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

func (r *mongoSlotRepo) GetOccurrence(ctx context.Context, key string) (*models.Occurrence, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var occ models.Occurrence
	if err := r.occurrences.FindOne(ctx, bson.M{"key": key}).Decode(&occ); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &utils.NotFoundError{Resource: "occurrence", ID: key}
		}
		return nil, fmt.Errorf("find occurrence failed: %w", err)
	}
	return &occ, nil
}

// Reserve takes one unit of capacity from the occurrence described by
// template, creating its counter on first use. The increment is guarded by
// reserved < capacity on the server, so concurrent callers for the last unit
// cannot both win.
func (r *mongoSlotRepo) Reserve(ctx context.Context, t models.Occurrence) (*models.Occurrence, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.occurrences.UpdateOne(ctx,
		bson.M{"key": t.Key},
		bson.M{"$setOnInsert": bson.M{
			"key":      t.Key,
			"ownerId":  t.OwnerID,
			"tutorId":  t.TutorID,
			"start":    t.Start,
			"end":      t.End,
			"mode":     t.Mode,
			"price":    t.Price,
			"capacity": t.Capacity,
			"reserved": 0,
			"status":   models.SlotOpen,
		}},
		options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("init occurrence failed: %w", err)
	}

	filter := bson.M{
		"key":    t.Key,
		"status": models.SlotOpen,
		"$expr":  bson.M{"$lt": bson.A{"$reserved", "$capacity"}},
	}
	var occ models.Occurrence
	err = r.occurrences.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"reserved": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&occ)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &utils.CapacityExceededError{OccurrenceKey: t.Key}
		}
		return nil, fmt.Errorf("reserve occurrence failed: %w", err)
	}

	if occ.Reserved >= occ.Capacity {
		if _, err := r.occurrences.UpdateOne(ctx,
			bson.M{"key": t.Key, "status": models.SlotOpen},
			bson.M{"$set": bson.M{"status": models.SlotFull}}); err != nil {
			return nil, fmt.Errorf("mark occurrence full failed: %w", err)
		}
		occ.Status = models.SlotFull
	}
	return &occ, nil
}

// Release gives one unit back. A full occurrence reopens; a cancelled one
// stays cancelled.
func (r *mongoSlotRepo) Release(ctx context.Context, key string) (*models.Occurrence, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "reserved", Value: bson.D{{Key: "$subtract", Value: bson.A{"$reserved", 1}}}},
			{Key: "status", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$status", models.SlotCancelled}}},
				models.SlotCancelled,
				models.SlotOpen,
			}}}},
		}}},
	}

	var occ models.Occurrence
	err := r.occurrences.FindOneAndUpdate(ctx,
		bson.M{"key": key, "reserved": bson.M{"$gt": 0}},
		pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&occ)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &utils.NotFoundError{Resource: "reserved occurrence", ID: key}
		}
		return nil, fmt.Errorf("release occurrence failed: %w", err)
	}
	return &occ, nil
}
