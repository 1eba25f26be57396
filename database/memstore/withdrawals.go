package memstore

import (
	"context"
	"slices"

	"tutorbook/models"
	"tutorbook/utils"
)

type withdrawalStore struct {
	db *DB
}

func (s *withdrawalStore) Create(ctx context.Context, w *models.WithdrawalRequest) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	put(log, s.db.withdrawals, w.ID, cloneWithdrawal(*w))
	return nil
}

func (s *withdrawalStore) GetByID(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	w, ok := s.db.withdrawals[id]
	if !ok {
		return nil, &utils.NotFoundError{Resource: "withdrawal", ID: id}
	}
	out := cloneWithdrawal(w)
	return &out, nil
}

func (s *withdrawalStore) Update(ctx context.Context, w *models.WithdrawalRequest) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	cur, ok := s.db.withdrawals[w.ID]
	if !ok {
		return &utils.NotFoundError{Resource: "withdrawal", ID: w.ID}
	}
	if cur.Version != w.Version {
		return &utils.ConcurrencyConflictError{Resource: "withdrawal " + w.ID}
	}
	w.Version++
	put(log, s.db.withdrawals, w.ID, cloneWithdrawal(*w))
	return nil
}

func (s *withdrawalStore) list(ctx context.Context, keep func(models.WithdrawalRequest) bool) []models.WithdrawalRequest {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	var out []models.WithdrawalRequest
	for _, w := range s.db.withdrawals {
		if keep(w) {
			out = append(out, cloneWithdrawal(w))
		}
	}
	slices.SortFunc(out, func(a, b models.WithdrawalRequest) int {
		return b.RequestedAt.Compare(a.RequestedAt)
	})
	return out
}

func (s *withdrawalStore) ListByTutor(ctx context.Context, tutorID string) ([]models.WithdrawalRequest, error) {
	return s.list(ctx, func(w models.WithdrawalRequest) bool { return w.TutorID == tutorID }), nil
}

func (s *withdrawalStore) ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	return s.list(ctx, func(w models.WithdrawalRequest) bool { return w.Status == status }), nil
}
