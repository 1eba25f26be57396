package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"tutorbook/models"
	"tutorbook/utils"
)

type escrowStore struct {
	db *DB
}

func (s *escrowStore) CreateEntry(ctx context.Context, e *models.EscrowEntry) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	for _, other := range s.db.entries {
		if other.BookingID == e.BookingID {
			return &utils.ConcurrencyConflictError{Resource: "escrow entry for booking " + e.BookingID}
		}
	}
	put(log, s.db.entries, e.ID, *e)
	return nil
}

func (s *escrowStore) GetEntry(ctx context.Context, id string) (*models.EscrowEntry, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	e, ok := s.db.entries[id]
	if !ok {
		return nil, &utils.NotFoundError{Resource: "escrow entry", ID: id}
	}
	return &e, nil
}

func (s *escrowStore) GetEntryByBooking(ctx context.Context, bookingID string) (*models.EscrowEntry, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	for _, e := range s.db.entries {
		if e.BookingID == bookingID {
			return &e, nil
		}
	}
	return nil, &utils.NotFoundError{Resource: "escrow entry", ID: bookingID}
}

func (s *escrowStore) UpdateEntry(ctx context.Context, e *models.EscrowEntry) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	cur, ok := s.db.entries[e.ID]
	if !ok {
		return &utils.NotFoundError{Resource: "escrow entry", ID: e.ID}
	}
	if cur.Version != e.Version {
		return &utils.ConcurrencyConflictError{Resource: "escrow entry " + e.ID}
	}
	e.Version++
	put(log, s.db.entries, e.ID, *e)
	return nil
}

func (s *escrowStore) ListEntries(ctx context.Context, tutorID string, buckets ...models.Bucket) ([]models.EscrowEntry, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	var out []models.EscrowEntry
	for _, e := range s.db.entries {
		if e.TutorID != tutorID {
			continue
		}
		if len(buckets) > 0 && !slices.Contains(buckets, e.Bucket) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b models.EscrowEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *escrowStore) GetBalance(ctx context.Context, tutorID string) (*models.TutorBalance, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	b, ok := s.db.balances[tutorID]
	if !ok {
		b = models.TutorBalance{TutorID: tutorID}
	}
	return &b, nil
}

func (s *escrowStore) ApplyDelta(ctx context.Context, tutorID string, d models.BalanceDelta) (*models.TutorBalance, error) {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	b, ok := s.db.balances[tutorID]
	if !ok {
		b = models.TutorBalance{TutorID: tutorID}
	}
	if d.MinAvailable > 0 && b.Available < d.MinAvailable {
		return nil, &utils.InsufficientBalanceError{TutorID: tutorID, Requested: d.MinAvailable, Available: b.Available}
	}
	if d.MinPending > 0 && b.Pending < d.MinPending {
		return nil, fmt.Errorf("pending balance of tutor %s would go negative", tutorID)
	}
	b.Pending += d.Pending
	b.Available += d.Available
	b.TotalEarned += d.TotalEarned
	b.OnHold += d.OnHold
	b.Withdrawn += d.Withdrawn
	b.Version++
	b.UpdatedAt = time.Now().UTC()
	put(log, s.db.balances, tutorID, b)
	return &b, nil
}

func (s *escrowStore) ListTutorIDs(ctx context.Context) ([]string, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range s.db.entries {
		if _, ok := seen[e.TutorID]; ok {
			continue
		}
		seen[e.TutorID] = struct{}{}
		ids = append(ids, e.TutorID)
	}
	slices.Sort(ids)
	return ids, nil
}
