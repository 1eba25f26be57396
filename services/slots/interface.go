package slots

import (
	"context"
	"iter"
	"time"

	"tutorbook/models"
)

// SlotService is the slot store: slot and availability-rule definitions
// plus atomic capacity accounting on their occurrences.
type SlotService interface {
	CreateSlot(ctx context.Context, in CreateSlotInput) (*models.TeachingSlot, error)
	CancelSlot(ctx context.Context, tutorID, slotID string) (*models.TeachingSlot, error)
	ListOpenSlots(ctx context.Context, filter models.SlotFilter) iter.Seq2[models.Occurrence, error]
	ResolveOccurrence(ctx context.Context, slotID string, start time.Time) (*models.Occurrence, error)
	ReserveCapacity(ctx context.Context, slotID string, start time.Time) (*models.Reservation, error)
	ReleaseCapacity(ctx context.Context, occurrenceKey string) error

	CreateAvailabilityRule(ctx context.Context, in RuleInput) (*models.AvailabilityRule, error)
	SetCellOverride(ctx context.Context, tutorID, ruleID string, o models.CellOverride) (*models.AvailabilityRule, error)
	ListCells(ctx context.Context, tutorID string, from, to time.Time) ([]models.Cell, error)
	ReserveRange(ctx context.Context, tutorID string, start, end time.Time) (*RangeReservation, error)
}

// CreateSlotInput is validated with struct tags before any cross-field check.
type CreateSlotInput struct {
	TutorID    string              `json:"tutorId" validate:"required"`
	Start      time.Time           `json:"start" validate:"required"`
	End        time.Time           `json:"end" validate:"required"`
	Mode       models.TeachingMode `json:"mode" validate:"required,oneof=online offline"`
	Price      int64               `json:"price" validate:"gt=0"`
	Capacity   int                 `json:"capacity" validate:"min=1,max=500"`
	Recurrence *models.Recurrence  `json:"recurrence,omitempty"`
}

type RuleInput struct {
	TutorID      string              `json:"tutorId" validate:"required"`
	Weekday      time.Weekday        `json:"weekday" validate:"min=0,max=6"`
	StartMinute  int                 `json:"startMinute" validate:"min=0,max=1439"`
	EndMinute    int                 `json:"endMinute" validate:"min=1,max=1440"`
	CellMinutes  int                 `json:"cellMinutes" validate:"min=15,max=240"`
	PricePerCell int64               `json:"pricePerCell" validate:"gt=0"`
	Mode         models.TeachingMode `json:"mode" validate:"required,oneof=online offline"`
}

// RangeReservation is the result of reserving every cell an ad-hoc range
// covers.
type RangeReservation struct {
	Reservations []models.Reservation
	Price        int64
	Mode         models.TeachingMode
}
