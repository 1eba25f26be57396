package memstore

import (
	"context"
	"time"

	"tutorbook/models"
	"tutorbook/utils"
)

type paymentStore struct {
	db *DB
}

func (s *paymentStore) Create(ctx context.Context, p *models.PaymentRecord) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	if _, ok := s.db.payments[p.OrderCode]; ok {
		return &utils.ConcurrencyConflictError{Resource: "order code " + p.OrderCode}
	}
	for _, other := range s.db.payments {
		if other.BookingID == p.BookingID && other.Status == models.ProviderPending {
			return &utils.ConcurrencyConflictError{Resource: "payment record for booking " + p.BookingID}
		}
	}
	put(log, s.db.payments, p.OrderCode, clonePayment(*p))
	return nil
}

func (s *paymentStore) GetByOrderCode(ctx context.Context, orderCode string) (*models.PaymentRecord, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	p, ok := s.db.payments[orderCode]
	if !ok {
		return nil, &utils.NotFoundError{Resource: "payment record", ID: orderCode}
	}
	out := clonePayment(p)
	return &out, nil
}

func (s *paymentStore) ActiveForBooking(ctx context.Context, bookingID string) (*models.PaymentRecord, error) {
	unlock, _ := s.db.acquire(ctx)
	defer unlock()
	for _, p := range s.db.payments {
		if p.BookingID == bookingID && p.Status == models.ProviderPending {
			out := clonePayment(p)
			return &out, nil
		}
	}
	return nil, &utils.NotFoundError{Resource: "payment record", ID: bookingID}
}

func (s *paymentStore) SetLink(ctx context.Context, orderCode, providerRef, redirectURL string) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	p, ok := s.db.payments[orderCode]
	if !ok {
		return &utils.NotFoundError{Resource: "payment record", ID: orderCode}
	}
	p = clonePayment(p)
	p.ProviderRef = providerRef
	p.RedirectURL = redirectURL
	p.UpdatedAt = time.Now().UTC()
	put(log, s.db.payments, orderCode, p)
	return nil
}

func (s *paymentStore) TransitionStatus(ctx context.Context, orderCode string, from, to models.ProviderStatus, ev models.ProviderEvent, late bool) (bool, error) {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	p, ok := s.db.payments[orderCode]
	if !ok || p.Status != from {
		return false, nil
	}
	p = clonePayment(p)
	p.Status = to
	p.Late = p.Late || late
	p.Payloads = append(p.Payloads, ev)
	p.UpdatedAt = time.Now().UTC()
	put(log, s.db.payments, orderCode, p)
	return true, nil
}

func (s *paymentStore) AppendPayload(ctx context.Context, orderCode string, ev models.ProviderEvent) error {
	unlock, log := s.db.acquire(ctx)
	defer unlock()
	p, ok := s.db.payments[orderCode]
	if !ok {
		return &utils.NotFoundError{Resource: "payment record", ID: orderCode}
	}
	p = clonePayment(p)
	p.Payloads = append(p.Payloads, ev)
	put(log, s.db.payments, orderCode, p)
	return nil
}
