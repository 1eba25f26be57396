// File: database/repository/slot/interface.go
package slotRepo

import (
	"context"
	"iter"

	"tutorbook/database"
	"tutorbook/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// SlotRepository stores teaching slots, availability rules and the lazily
// created occurrence counters that carry capacity.
type SlotRepository interface {
	Create(ctx context.Context, slot *models.TeachingSlot) error
	GetByID(ctx context.Context, id string) (*models.TeachingSlot, error)
	SetStatus(ctx context.Context, id string, from, to models.SlotStatus) (bool, error)
	Iterate(ctx context.Context, filter models.SlotFilter) iter.Seq2[models.TeachingSlot, error]

	CreateRule(ctx context.Context, rule *models.AvailabilityRule) error
	GetRule(ctx context.Context, id string) (*models.AvailabilityRule, error)
	ListRules(ctx context.Context, tutorID string) ([]models.AvailabilityRule, error)
	UpdateRule(ctx context.Context, rule *models.AvailabilityRule) error

	GetOccurrence(ctx context.Context, key string) (*models.Occurrence, error)
	Reserve(ctx context.Context, template models.Occurrence) (*models.Occurrence, error)
	Release(ctx context.Context, key string) (*models.Occurrence, error)
}

type mongoSlotRepo struct {
	slots       *mongo.Collection
	rules       *mongo.Collection
	occurrences *mongo.Collection
}

// NewMongoSlotRepo constructs a new MongoDB SlotRepository.
func NewMongoSlotRepo() SlotRepository {
	db := database.DB()
	return &mongoSlotRepo{
		slots:       db.Collection("slots"),
		rules:       db.Collection("availability_rules"),
		occurrences: db.Collection("slot_occurrences"),
	}
}
