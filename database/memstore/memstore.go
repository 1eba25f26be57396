// Package memstore keeps every repository in process memory. It backs the
// memory store driver for local runs and the service tests.
package memstore

import (
	"context"
	"slices"
	"sync"

	"tutorbook/database/repository"
	"tutorbook/models"
)

// DB holds all tables behind one mutex. RunInTx holds the mutex for the
// whole callback and undoes every write if the callback fails.
type DB struct {
	mu sync.Mutex

	slots       map[string]models.TeachingSlot
	rules       map[string]models.AvailabilityRule
	occurrences map[string]models.Occurrence
	bookings    map[string]models.Booking
	payments    map[string]models.PaymentRecord // by order code
	entries     map[string]models.EscrowEntry
	balances    map[string]models.TutorBalance
	withdrawals map[string]models.WithdrawalRequest
}

func New() *DB {
	return &DB{
		slots:       make(map[string]models.TeachingSlot),
		rules:       make(map[string]models.AvailabilityRule),
		occurrences: make(map[string]models.Occurrence),
		bookings:    make(map[string]models.Booking),
		payments:    make(map[string]models.PaymentRecord),
		entries:     make(map[string]models.EscrowEntry),
		balances:    make(map[string]models.TutorBalance),
		withdrawals: make(map[string]models.WithdrawalRequest),
	}
}

// NewStore wires a fresh DB into the repository bundle.
func NewStore() *repository.Store {
	return New().Store()
}

func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Tx:          db,
		Slots:       &slotStore{db: db},
		Bookings:    &bookingStore{db: db},
		Payments:    &paymentStore{db: db},
		Escrow:      &escrowStore{db: db},
		Withdrawals: &withdrawalStore{db: db},
	}
}

type txKey struct{}

type txLog struct {
	undo []func()
}

func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txLog); ok {
		return fn(ctx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	log := &txLog{}
	err := fn(context.WithValue(ctx, txKey{}, log))
	if err != nil {
		for i := len(log.undo) - 1; i >= 0; i-- {
			log.undo[i]()
		}
	}
	return err
}

// acquire locks the DB unless ctx already runs inside a transaction.
func (db *DB) acquire(ctx context.Context) (func(), *txLog) {
	if log, ok := ctx.Value(txKey{}).(*txLog); ok {
		return func() {}, log
	}
	db.mu.Lock()
	return db.mu.Unlock, nil
}

func put[K comparable, V any](log *txLog, m map[K]V, k K, v V) {
	if log != nil {
		old, had := m[k]
		log.undo = append(log.undo, func() {
			if had {
				m[k] = old
			} else {
				delete(m, k)
			}
		})
	}
	m[k] = v
}

func cloneSlot(s models.TeachingSlot) models.TeachingSlot {
	if s.Recurrence != nil {
		r := *s.Recurrence
		r.Weekdays = slices.Clone(r.Weekdays)
		s.Recurrence = &r
	}
	return s
}

func cloneRule(r models.AvailabilityRule) models.AvailabilityRule {
	r.Overrides = slices.Clone(r.Overrides)
	return r
}

func cloneBooking(b models.Booking) models.Booking {
	b.History = slices.Clone(b.History)
	b.Reservations = slices.Clone(b.Reservations)
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		b.CompletedAt = &t
	}
	return b
}

func clonePayment(p models.PaymentRecord) models.PaymentRecord {
	p.Payloads = slices.Clone(p.Payloads)
	return p
}

func cloneWithdrawal(w models.WithdrawalRequest) models.WithdrawalRequest {
	w.Allocations = slices.Clone(w.Allocations)
	return w
}
