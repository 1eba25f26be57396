package memstore

import (
	"context"
	"iter"
	"slices"
	"strings"
	"time"

	"tutorbook/models"
	"tutorbook/utils"
)

type slotStore struct {
	db *DB
}

func (s *slotStore) Create(ctx context.Context, slot *models.TeachingSlot) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	put(log, s.db.slots, slot.ID, cloneSlot(*slot))
	return nil
}

func (s *slotStore) GetByID(ctx context.Context, id string) (*models.TeachingSlot, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	slot, ok := s.db.slots[id]
	if !ok {
		return nil, &utils.NotFoundError{Resource: "slot", ID: id}
	}
	out := cloneSlot(slot)
	return &out, nil
}

func (s *slotStore) SetStatus(ctx context.Context, id string, from, to models.SlotStatus) (bool, error) {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	slot, ok := s.db.slots[id]
	if !ok || slot.Status != from {
		return false, nil
	}
	slot.Status = to
	slot.Version++
	slot.UpdatedAt = time.Now().UTC()
	put(log, s.db.slots, id, slot)
	return true, nil
}

// Iterate snapshots the matching slots, then yields them without holding
// the lock so callers may query the store while ranging.
func (s *slotStore) Iterate(ctx context.Context, f models.SlotFilter) iter.Seq2[models.TeachingSlot, error] {
	return func(yield func(models.TeachingSlot, error) bool) {
		unlock, _ := s.db.acquire(ctx)
		var matched []models.TeachingSlot
		for _, slot := range s.db.slots {
			if slot.Status == models.SlotCancelled || !slot.Start.Before(f.To) {
				continue
			}
			if f.TutorID != "" && slot.TutorID != f.TutorID {
				continue
			}
			if f.Mode != "" && slot.Mode != f.Mode {
				continue
			}
			if slot.Recurrence == nil && !slot.End.After(f.From) {
				continue
			}
			if slot.Recurrence != nil && slot.Recurrence.Until.Before(f.From) {
				continue
			}
			matched = append(matched, cloneSlot(slot))
		}
		unlock()

		slices.SortFunc(matched, func(a, b models.TeachingSlot) int {
			if c := a.Start.Compare(b.Start); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		for _, slot := range matched {
			if ctx.Err() != nil {
				yield(models.TeachingSlot{}, ctx.Err())
				return
			}
			if !yield(slot, nil) {
				return
			}
		}
	}
}

func (s *slotStore) CreateRule(ctx context.Context, rule *models.AvailabilityRule) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	put(log, s.db.rules, rule.ID, cloneRule(*rule))
	return nil
}

func (s *slotStore) GetRule(ctx context.Context, id string) (*models.AvailabilityRule, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	rule, ok := s.db.rules[id]
	if !ok {
		return nil, &utils.NotFoundError{Resource: "availability rule", ID: id}
	}
	out := cloneRule(rule)
	return &out, nil
}

func (s *slotStore) ListRules(ctx context.Context, tutorID string) ([]models.AvailabilityRule, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	var out []models.AvailabilityRule
	for _, rule := range s.db.rules {
		if rule.TutorID == tutorID && rule.Active {
			out = append(out, cloneRule(rule))
		}
	}
	slices.SortFunc(out, func(a, b models.AvailabilityRule) int {
		if a.Weekday != b.Weekday {
			return int(a.Weekday) - int(b.Weekday)
		}
		return a.StartMinute - b.StartMinute
	})
	return out, nil
}

func (s *slotStore) UpdateRule(ctx context.Context, rule *models.AvailabilityRule) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	cur, ok := s.db.rules[rule.ID]
	if !ok {
		return &utils.NotFoundError{Resource: "availability rule", ID: rule.ID}
	}
	if cur.Version != rule.Version {
		return &utils.ConcurrencyConflictError{Resource: "availability rule " + rule.ID}
	}
	rule.Version++
	put(log, s.db.rules, rule.ID, cloneRule(*rule))
	return nil
}

func (s *slotStore) GetOccurrence(ctx context.Context, key string) (*models.Occurrence, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	occ, ok := s.db.occurrences[key]
	if !ok {
		return nil, &utils.NotFoundError{Resource: "occurrence", ID: key}
	}
	return &occ, nil
}

func (s *slotStore) Reserve(ctx context.Context, t models.Occurrence) (*models.Occurrence, error) {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	occ, ok := s.db.occurrences[t.Key]
	if !ok {
		occ = t
		occ.Reserved = 0
		occ.Status = models.SlotOpen
	}
	if occ.Status != models.SlotOpen || occ.Reserved >= occ.Capacity {
		return nil, &utils.CapacityExceededError{OccurrenceKey: t.Key}
	}
	occ.Reserved++
	if occ.Reserved >= occ.Capacity {
		occ.Status = models.SlotFull
	}
	put(log, s.db.occurrences, t.Key, occ)
	return &occ, nil
}

func (s *slotStore) Release(ctx context.Context, key string) (*models.Occurrence, error) {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	occ, ok := s.db.occurrences[key]
	if !ok || occ.Reserved == 0 {
		return nil, &utils.NotFoundError{Resource: "reserved occurrence", ID: key}
	}
	occ.Reserved--
	if occ.Status != models.SlotCancelled {
		occ.Status = models.SlotOpen
	}
	put(log, s.db.occurrences, key, occ)
	return &occ, nil
}
