package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"tutorbook/models"
)

// ErrIgnoredEvent marks a verified callback of a kind that carries no
// payment status. It is acknowledged and dropped.
var ErrIgnoredEvent = errors.New("event type not handled")

// Provider is one external payment gateway.
type Provider interface {
	Name() string
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*ProviderLink, error)
	// ParseWebhook verifies the signature and decodes the callback. Any
	// failure is a *utils.VerificationError.
	ParseWebhook(payload []byte, signature string) (*models.ProviderEvent, error)
	FetchStatus(ctx context.Context, orderCode, reference string) (*models.ProviderEvent, error)
	Cancel(ctx context.Context, orderCode, reference string) error
}

type LinkRequest struct {
	OrderCode   string
	Amount      int64
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
	ExpiresAt   time.Time
}

type ProviderLink struct {
	Reference   string
	RedirectURL string
}

// NewOrderCode returns 96 random bits, hex encoded. Order codes are the only
// id a learner ever sees, so they must not be guessable.
func NewOrderCode() (string, error) {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate order code: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
