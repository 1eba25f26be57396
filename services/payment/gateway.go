package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	paymentRepo "tutorbook/database/repository/payment"
	"tutorbook/models"
	"tutorbook/utils"

	"go.uber.org/zap"
)

// Gateway is the payment adapter. It never changes a booking; it turns
// provider traffic into verified, record-matched PaymentEvents for the
// booking lifecycle to apply.
type Gateway interface {
	ProviderName() string
	CreatePaymentLink(ctx context.Context, b *models.Booking, expiresAt time.Time) (*models.PaymentLink, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*models.PaymentEvent, error)
	VerifyByOrderCode(ctx context.Context, orderCode string) (*models.PaymentEvent, error)
	CancelLink(ctx context.Context, orderCode string)
	MarkApplied(ctx context.Context, ev *models.PaymentEvent)
}

type DefaultGateway struct {
	Provider  Provider
	Payments  paymentRepo.PaymentRepository
	Seen      SeenCache
	Currency  string
	ReturnURL string
	CancelURL string
	Logger    *zap.Logger
}

func NewGateway(provider Provider, payments paymentRepo.PaymentRepository, seen SeenCache, currency, returnURL, cancelURL string, logger *zap.Logger) *DefaultGateway {
	return &DefaultGateway{
		Provider:  provider,
		Payments:  payments,
		Seen:      seen,
		Currency:  currency,
		ReturnURL: returnURL,
		CancelURL: cancelURL,
		Logger:    logger,
	}
}

func (g *DefaultGateway) ProviderName() string { return g.Provider.Name() }

// CreatePaymentLink asks the provider for a hosted checkout for the
// booking's pending record and stores the link on it.
func (g *DefaultGateway) CreatePaymentLink(ctx context.Context, b *models.Booking, expiresAt time.Time) (*models.PaymentLink, error) {
	link, err := g.Provider.CreatePaymentLink(ctx, LinkRequest{
		OrderCode:   b.OrderCode,
		Amount:      b.Price,
		Currency:    g.Currency,
		Description: fmt.Sprintf("Tutoring session %s", b.Start.Format("2006-01-02 15:04")),
		ReturnURL:   g.ReturnURL,
		CancelURL:   g.CancelURL,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		g.Logger.Error("payment link creation failed",
			zap.String("orderCode", b.OrderCode),
			zap.String("bookingId", b.ID),
			zap.Error(err))
		return nil, err
	}
	if err := g.Payments.SetLink(ctx, b.OrderCode, link.Reference, link.RedirectURL); err != nil {
		return nil, err
	}
	return &models.PaymentLink{OrderCode: b.OrderCode, RedirectURL: link.RedirectURL, ExpiresAt: expiresAt}, nil
}

// HandleWebhook verifies and matches one delivery. Nothing is written
// before verification succeeds.
func (g *DefaultGateway) HandleWebhook(ctx context.Context, payload []byte, signature string) (*models.PaymentEvent, error) {
	ev, err := g.Provider.ParseWebhook(payload, signature)
	if errors.Is(err, ErrIgnoredEvent) {
		g.Logger.Debug("webhook ignored", zap.String("provider", g.Provider.Name()), zap.Error(err))
		return nil, err
	}
	if err != nil {
		g.Logger.Warn("webhook rejected", zap.String("provider", g.Provider.Name()), zap.Error(err))
		return nil, err
	}
	return g.match(ctx, ev)
}

// VerifyByOrderCode polls the provider for an order's status.
func (g *DefaultGateway) VerifyByOrderCode(ctx context.Context, orderCode string) (*models.PaymentEvent, error) {
	rec, err := g.Payments.GetByOrderCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	ev, err := g.Provider.FetchStatus(ctx, orderCode, rec.ProviderRef)
	if err != nil {
		return nil, fmt.Errorf("poll payment %s: %w", orderCode, err)
	}
	return g.match(ctx, ev)
}

func (g *DefaultGateway) match(ctx context.Context, ev *models.ProviderEvent) (*models.PaymentEvent, error) {
	rec, err := g.Payments.GetByOrderCode(ctx, ev.OrderCode)
	if err != nil {
		if utils.IsKind(err, utils.KindNotFound) {
			g.Logger.Warn("webhook for unknown order code", zap.String("orderCode", ev.OrderCode))
			return nil, &utils.VerificationError{Reason: "unknown order code"}
		}
		return nil, err
	}
	if ev.Amount != 0 && ev.Amount != rec.Amount {
		g.Logger.Error("webhook amount does not match payment record",
			zap.String("orderCode", rec.OrderCode),
			zap.String("bookingId", rec.BookingID),
			zap.Int64("expected", rec.Amount),
			zap.Int64("received", ev.Amount))
		return nil, &utils.VerificationError{Reason: "amount mismatch"}
	}

	out := &models.PaymentEvent{
		OrderCode: rec.OrderCode,
		BookingID: rec.BookingID,
		Status:    ev.Status,
		Amount:    rec.Amount,
		Source:    *ev,
	}
	if rec.Status == ev.Status {
		out.Duplicate = true
		return out, nil
	}
	if seen, err := g.Seen.Seen(ctx, seenKey(out)); err != nil {
		g.Logger.Warn("webhook seen-cache lookup failed", zap.String("orderCode", rec.OrderCode), zap.Error(err))
	} else if seen {
		out.Duplicate = true
	}
	return out, nil
}

// CancelLink closes the hosted checkout of an order that no longer needs
// paying. Failures are logged only; a late payment is still recorded.
func (g *DefaultGateway) CancelLink(ctx context.Context, orderCode string) {
	rec, err := g.Payments.GetByOrderCode(ctx, orderCode)
	if err != nil {
		return
	}
	if err := g.Provider.Cancel(ctx, orderCode, rec.ProviderRef); err != nil {
		g.Logger.Warn("payment link cancel failed", zap.String("orderCode", orderCode), zap.String("bookingId", rec.BookingID), zap.Error(err))
	}
}

// MarkApplied records a delivery in the seen cache once it has committed.
func (g *DefaultGateway) MarkApplied(ctx context.Context, ev *models.PaymentEvent) {
	if err := g.Seen.Mark(ctx, seenKey(ev)); err != nil {
		g.Logger.Warn("webhook seen-cache write failed", zap.String("orderCode", ev.OrderCode), zap.Error(err))
	}
}

func seenKey(ev *models.PaymentEvent) string {
	return ev.OrderCode + ":" + string(ev.Status)
}
