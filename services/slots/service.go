package slots

import (
	"context"
	"fmt"
	"iter"
	"time"

	"tutorbook/database"
	slotRepo "tutorbook/database/repository/slot"
	"tutorbook/models"
	"tutorbook/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DefaultSlotService struct {
	Repo   slotRepo.SlotRepository
	Tx     database.TxRunner
	Policy models.Policy
	Logger *zap.Logger
	Now    func() time.Time
}

func NewSlotService(repo slotRepo.SlotRepository, tx database.TxRunner, policy models.Policy, logger *zap.Logger) *DefaultSlotService {
	return &DefaultSlotService{Repo: repo, Tx: tx, Policy: policy, Logger: logger, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *DefaultSlotService) CreateSlot(ctx context.Context, in CreateSlotInput) (*models.TeachingSlot, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if !in.Start.Before(in.End) {
		return nil, utils.NewValidationError("end", "start must be before end")
	}
	if in.Recurrence != nil {
		if len(in.Recurrence.Weekdays) == 0 {
			return nil, utils.NewValidationError("recurrence.weekdays", "at least one weekday is required")
		}
		for _, wd := range in.Recurrence.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return nil, utils.NewValidationError("recurrence.weekdays", "invalid weekday %d", wd)
			}
		}
		if !in.Recurrence.Until.After(in.Start) {
			return nil, utils.NewValidationError("recurrence.until", "must be after the first start")
		}
		if in.End.Sub(in.Start) > 24*time.Hour {
			return nil, utils.NewValidationError("end", "recurring slots cannot span more than a day")
		}
	}

	now := s.Now()
	slot := &models.TeachingSlot{
		ID:         uuid.New().String(),
		TutorID:    in.TutorID,
		Start:      in.Start.UTC(),
		End:        in.End.UTC(),
		Mode:       in.Mode,
		Price:      in.Price,
		Capacity:   in.Capacity,
		Status:     models.SlotOpen,
		Recurrence: in.Recurrence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Repo.Create(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	s.Logger.Info("slot created", zap.String("slotId", slot.ID), zap.String("tutorId", slot.TutorID))
	return slot, nil
}

// CancelSlot soft-closes a slot. Existing bookings keep their reservations;
// no new ones are accepted.
func (s *DefaultSlotService) CancelSlot(ctx context.Context, tutorID, slotID string) (*models.TeachingSlot, error) {
	slot, err := s.Repo.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.TutorID != tutorID {
		return nil, &utils.NotFoundError{Resource: "slot", ID: slotID}
	}
	if slot.Status == models.SlotCancelled {
		return slot, nil
	}
	ok, err := s.Repo.SetStatus(ctx, slotID, slot.Status, models.SlotCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &utils.ConcurrencyConflictError{Resource: "slot " + slotID}
	}
	slot.Status = models.SlotCancelled
	return slot, nil
}

// ListOpenSlots lazily expands every matching slot into occurrences that
// still have capacity. The window is clamped to the listing horizon so the
// sequence is always finite; ranging again re-reads the store.
func (s *DefaultSlotService) ListOpenSlots(ctx context.Context, f models.SlotFilter) iter.Seq2[models.Occurrence, error] {
	if f.From.IsZero() {
		f.From = s.Now()
	}
	horizon := s.Policy.ListHorizon
	if horizon <= 0 {
		horizon = 60 * 24 * time.Hour
	}
	if f.To.IsZero() || f.To.Sub(f.From) > horizon {
		f.To = f.From.Add(horizon)
	}

	return func(yield func(models.Occurrence, error) bool) {
		for slot, err := range s.Repo.Iterate(ctx, f) {
			if err != nil {
				if !yield(models.Occurrence{}, err) {
					return
				}
				continue
			}
			for start := range occurrenceStarts(slot, f.From, f.To) {
				occ := occurrenceOf(slot, start)
				stored, err := s.Repo.GetOccurrence(ctx, occ.Key)
				switch {
				case err == nil:
					occ.Reserved = stored.Reserved
					occ.Status = stored.Status
				case !utils.IsKind(err, utils.KindNotFound):
					if !yield(models.Occurrence{}, err) {
						return
					}
					continue
				}
				if occ.Status != models.SlotOpen || occ.Remaining() == 0 {
					continue
				}
				if !yield(occ, nil) {
					return
				}
			}
		}
	}
}

// ResolveOccurrence checks that start names a bookable occurrence of the
// slot and returns its current counters.
func (s *DefaultSlotService) ResolveOccurrence(ctx context.Context, slotID string, start time.Time) (*models.Occurrence, error) {
	_, occ, err := s.resolve(ctx, slotID, start)
	return occ, err
}

func (s *DefaultSlotService) resolve(ctx context.Context, slotID string, start time.Time) (*models.TeachingSlot, *models.Occurrence, error) {
	slot, err := s.Repo.GetByID(ctx, slotID)
	if err != nil {
		return nil, nil, err
	}
	if slot.Status == models.SlotCancelled {
		return nil, nil, utils.NewValidationError("slotId", "slot %s is cancelled", slotID)
	}
	if start.IsZero() && slot.Recurrence == nil {
		start = slot.Start
	}
	if !isOccurrence(*slot, start) {
		return nil, nil, utils.NewValidationError("occurrenceStart", "%s is not an occurrence of slot %s", start.UTC().Format(time.RFC3339), slotID)
	}
	occ := occurrenceOf(*slot, start)
	if !occ.Start.After(s.Now()) {
		return nil, nil, utils.NewValidationError("occurrenceStart", "occurrence has already started")
	}
	if stored, err := s.Repo.GetOccurrence(ctx, occ.Key); err == nil {
		occ.Reserved = stored.Reserved
		occ.Status = stored.Status
	} else if !utils.IsKind(err, utils.KindNotFound) {
		return nil, nil, err
	}
	return slot, &occ, nil
}

// ReserveCapacity takes one unit of an occurrence. When called with a
// transaction context it joins that transaction.
func (s *DefaultSlotService) ReserveCapacity(ctx context.Context, slotID string, start time.Time) (*models.Reservation, error) {
	var res *models.Reservation
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		slot, occ, err := s.resolve(ctx, slotID, start)
		if err != nil {
			return err
		}
		updated, err := s.Repo.Reserve(ctx, *occ)
		if err != nil {
			return err
		}
		// Only single-occurrence slots mirror their counter's status.
		if updated.Status == models.SlotFull && slot.Recurrence == nil {
			if _, err := s.Repo.SetStatus(ctx, slotID, models.SlotOpen, models.SlotFull); err != nil {
				return err
			}
		}
		res = &models.Reservation{
			OccurrenceKey: updated.Key,
			OwnerID:       updated.OwnerID,
			Start:         updated.Start,
			Remaining:     updated.Remaining(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReleaseCapacity returns one unit to an occurrence. A full single-occurrence
// slot reopens with it.
func (s *DefaultSlotService) ReleaseCapacity(ctx context.Context, occurrenceKey string) error {
	return s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		occ, err := s.Repo.Release(ctx, occurrenceKey)
		if err != nil {
			return err
		}
		if _, err := s.Repo.SetStatus(ctx, occ.OwnerID, models.SlotFull, models.SlotOpen); err != nil {
			return err
		}
		return nil
	})
}
