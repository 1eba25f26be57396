// File: database/repository/slot/crud.go
package slotRepo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"tutorbook/models"
	"tutorbook/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *mongoSlotRepo) Create(ctx context.Context, slot *models.TeachingSlot) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.slots.InsertOne(ctx, slot); err != nil {
		return fmt.Errorf("insert slot failed: %w", err)
	}
	return nil
}

func (r *mongoSlotRepo) GetByID(ctx context.Context, id string) (*models.TeachingSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var slot models.TeachingSlot
	if err := r.slots.FindOne(ctx, bson.M{"id": id}).Decode(&slot); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &utils.NotFoundError{Resource: "slot", ID: id}
		}
		return nil, fmt.Errorf("find slot failed: %w", err)
	}
	return &slot, nil
}

// SetStatus moves a slot between statuses only if it is still in from.
func (r *mongoSlotRepo) SetStatus(ctx context.Context, id string, from, to models.SlotStatus) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.slots.UpdateOne(ctx,
		bson.M{"id": id, "status": from},
		bson.M{
			"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return false, fmt.Errorf("update slot status failed: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// Iterate streams non-cancelled slots whose occurrences may fall inside the
// filter window, ordered by first start. Each range re-runs the query.
func (r *mongoSlotRepo) Iterate(ctx context.Context, f models.SlotFilter) iter.Seq2[models.TeachingSlot, error] {
	return func(yield func(models.TeachingSlot, error) bool) {
		filter := bson.M{
			"status": bson.M{"$ne": models.SlotCancelled},
			"start":  bson.M{"$lt": f.To},
			"$or": bson.A{
				bson.M{"recurrence": nil, "end": bson.M{"$gt": f.From}},
				bson.M{"recurrence.until": bson.M{"$gte": f.From}},
			},
		}
		if f.TutorID != "" {
			filter["tutorId"] = f.TutorID
		}
		if f.Mode != "" {
			filter["mode"] = f.Mode
		}

		cur, err := r.slots.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start", Value: 1}}))
		if err != nil {
			yield(models.TeachingSlot{}, fmt.Errorf("failed to fetch slots: %w", err))
			return
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var slot models.TeachingSlot
			if err := cur.Decode(&slot); err != nil {
				if !yield(models.TeachingSlot{}, fmt.Errorf("error decoding slot: %w", err)) {
					return
				}
				continue
			}
			if !yield(slot, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(models.TeachingSlot{}, fmt.Errorf("slot cursor failed: %w", err))
		}
	}
}

func (r *mongoSlotRepo) CreateRule(ctx context.Context, rule *models.AvailabilityRule) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.rules.InsertOne(ctx, rule); err != nil {
		return fmt.Errorf("insert availability rule failed: %w", err)
	}
	return nil
}

func (r *mongoSlotRepo) GetRule(ctx context.Context, id string) (*models.AvailabilityRule, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rule models.AvailabilityRule
	if err := r.rules.FindOne(ctx, bson.M{"id": id}).Decode(&rule); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &utils.NotFoundError{Resource: "availability rule", ID: id}
		}
		return nil, fmt.Errorf("find availability rule failed: %w", err)
	}
	return &rule, nil
}

func (r *mongoSlotRepo) ListRules(ctx context.Context, tutorID string) ([]models.AvailabilityRule, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.rules.Find(ctx, bson.M{"tutorId": tutorID, "active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability rules: %w", err)
	}
	defer cur.Close(ctx)

	var rules []models.AvailabilityRule
	if err := cur.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("error decoding availability rules: %w", err)
	}
	return rules, nil
}

// UpdateRule replaces a rule if its version has not moved since it was read.
func (r *mongoSlotRepo) UpdateRule(ctx context.Context, rule *models.AvailabilityRule) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	expected := rule.Version
	rule.Version++
	res, err := r.rules.ReplaceOne(ctx, bson.M{"id": rule.ID, "version": expected}, rule)
	if err != nil {
		rule.Version = expected
		return fmt.Errorf("update availability rule failed: %w", err)
	}
	if res.MatchedCount == 0 {
		rule.Version = expected
		return &utils.ConcurrencyConflictError{Resource: "availability rule " + rule.ID}
	}
	return nil
}
