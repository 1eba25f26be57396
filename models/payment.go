package models

import "time"

type ProviderStatus string

const (
	ProviderPending   ProviderStatus = "PENDING"
	ProviderPaid      ProviderStatus = "PAID"
	ProviderCancelled ProviderStatus = "CANCELLED"
	ProviderExpired   ProviderStatus = "EXPIRED"
)

func (s ProviderStatus) Terminal() bool {
	return s == ProviderPaid || s == ProviderCancelled || s == ProviderExpired
}

// PaymentRecord is one external payment attempt for a booking, correlated
// with the provider through OrderCode.
type PaymentRecord struct {
	ID          string          `bson:"id" json:"id"`
	OrderCode   string          `bson:"orderCode" json:"orderCode"`
	BookingID   string          `bson:"bookingId" json:"bookingId"`
	Amount      int64           `bson:"amount" json:"amount"`
	Currency    string          `bson:"currency" json:"currency"`
	Status      ProviderStatus  `bson:"status" json:"status"`
	Provider    string          `bson:"provider" json:"provider"`
	ProviderRef string          `bson:"providerRef,omitempty" json:"providerRef,omitempty"`
	RedirectURL string          `bson:"redirectUrl,omitempty" json:"redirectUrl,omitempty"`
	Late        bool            `bson:"late,omitempty" json:"late,omitempty"` // paid after the booking left escrow
	Payloads    []ProviderEvent `bson:"payloads,omitempty" json:"-"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// ProviderEvent is a verified callback or poll result, kept raw for audit.
type ProviderEvent struct {
	OrderCode  string         `bson:"orderCode" json:"orderCode"`
	Status     ProviderStatus `bson:"status" json:"status"`
	Amount     int64          `bson:"amount" json:"amount"`
	Reference  string         `bson:"reference,omitempty" json:"reference,omitempty"`
	Raw        string         `bson:"raw" json:"raw"`
	ReceivedAt time.Time      `bson:"receivedAt" json:"receivedAt"`
}

// PaymentEvent is what the adapter hands to the booking lifecycle once a
// provider event has been verified and matched to a record.
type PaymentEvent struct {
	OrderCode string         `json:"orderCode"`
	BookingID string         `json:"bookingId"`
	Status    ProviderStatus `json:"status"`
	Amount    int64          `json:"amount"`
	Duplicate bool           `json:"duplicate"`
	Source    ProviderEvent  `json:"-"`
}

// PaymentLink is returned to the learner after booking creation.
type PaymentLink struct {
	OrderCode   string    `json:"orderCode"`
	RedirectURL string    `json:"redirectUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
