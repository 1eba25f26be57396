package memstore

import (
	"context"
	"slices"
	"time"

	bookingRepo "tutorbook/database/repository/booking"
	"tutorbook/models"
	"tutorbook/utils"
)

type bookingStore struct {
	db *DB
}

func (s *bookingStore) Create(ctx context.Context, b *models.Booking) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	put(log, s.db.bookings, b.ID, cloneBooking(*b))
	return nil
}

func (s *bookingStore) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return nil, &utils.NotFoundError{Resource: "booking", ID: id}
	}
	out := cloneBooking(b)
	return &out, nil
}

func (s *bookingStore) Update(ctx context.Context, b *models.Booking) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	cur, ok := s.db.bookings[b.ID]
	if !ok {
		return &utils.NotFoundError{Resource: "booking", ID: b.ID}
	}
	if cur.Version != b.Version {
		return &utils.ConcurrencyConflictError{Resource: "booking " + b.ID}
	}
	b.Version++
	put(log, s.db.bookings, b.ID, cloneBooking(*b))
	return nil
}

func (s *bookingStore) filter(ctx context.Context, keep func(models.Booking) bool) []models.Booking {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	var out []models.Booking
	for _, b := range s.db.bookings {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	return out
}

func byStartDesc(a, b models.Booking) int {
	return b.Start.Compare(a.Start)
}

func (s *bookingStore) ListByLearner(ctx context.Context, learnerID string) ([]models.Booking, error) {
	out := s.filter(ctx, func(b models.Booking) bool { return b.LearnerID == learnerID })
	slices.SortFunc(out, byStartDesc)
	return out, nil
}

func (s *bookingStore) ListByTutor(ctx context.Context, tutorID string) ([]models.Booking, error) {
	out := s.filter(ctx, func(b models.Booking) bool { return b.TutorID == tutorID })
	slices.SortFunc(out, byStartDesc)
	return out, nil
}

func dueAt(b models.Booking, f bookingRepo.DueField) time.Time {
	switch f {
	case bookingRepo.DuePaymentDeadline:
		return b.PaymentDeadline
	case bookingRepo.DueStart:
		return b.Start
	}
	return b.End
}

func (s *bookingStore) ListDue(ctx context.Context, q bookingRepo.DueQuery) ([]models.Booking, error) {
	out := s.filter(ctx, func(b models.Booking) bool {
		return b.State() == q.State && !dueAt(b, q.Field).After(q.Before)
	})
	slices.SortFunc(out, func(a, b models.Booking) int {
		return dueAt(a, q.Field).Compare(dueAt(b, q.Field))
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
