package models

import "time"

type Bucket string

const (
	BucketPending   Bucket = "pending"
	BucketAvailable Bucket = "available"
	BucketRefunded  Bucket = "refunded"
	BucketPaidOut   Bucket = "paid-out"
)

// EscrowEntry is the ledger line for one paid booking. Gross, Fee and Payout
// are fixed at creation; Gross == Fee + Payout.
type EscrowEntry struct {
	ID           string     `bson:"id" json:"id"`
	TutorID      string     `bson:"tutorId" json:"tutorId"`
	BookingID    string     `bson:"bookingId" json:"bookingId"`
	Gross        int64      `bson:"gross" json:"gross"`
	Fee          int64      `bson:"fee" json:"fee"`
	Payout       int64      `bson:"payout" json:"payout"`
	Bucket       Bucket     `bson:"bucket" json:"bucket"`
	PaidOut      int64      `bson:"paidOut" json:"paidOut"` // portion of Payout drained by withdrawals
	RefundAmount int64      `bson:"refundAmount" json:"refundAmount"`
	Version      int        `bson:"version" json:"version"`
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`
	ReleasedAt   *time.Time `bson:"releasedAt,omitempty" json:"releasedAt,omitempty"`
	ResolvedAt   *time.Time `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
}

// Outstanding is the part of the entry still owed to the tutor.
func (e EscrowEntry) Outstanding() int64 {
	switch e.Bucket {
	case BucketPending, BucketAvailable:
		return e.Payout - e.PaidOut
	}
	return 0
}

// TutorBalance is the per-tutor aggregate kept alongside the entries.
type TutorBalance struct {
	TutorID     string    `bson:"tutorId" json:"tutorId"`
	Pending     int64     `bson:"pending" json:"pending"`
	Available   int64     `bson:"available" json:"available"`
	TotalEarned int64     `bson:"totalEarned" json:"totalEarned"`
	OnHold      int64     `bson:"onHold" json:"onHold"` // withdrawals in flight
	Withdrawn   int64     `bson:"withdrawn" json:"withdrawn"`
	Version     int       `bson:"version" json:"version"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// BalanceView is the getBalance projection.
type BalanceView struct {
	TutorID     string `json:"tutorId"`
	Available   int64  `json:"available"`
	Pending     int64  `json:"pending"`
	Total       int64  `json:"total"`
	TotalEarned int64  `json:"totalEarned"`
	OnHold      int64  `json:"onHold"`
	Withdrawn   int64  `json:"withdrawn"`
}

// BalanceDelta is applied atomically to a tutor balance. MinAvailable guards
// decrements: the update only applies while available >= MinAvailable.
type BalanceDelta struct {
	Pending      int64
	Available    int64
	TotalEarned  int64
	OnHold       int64
	Withdrawn    int64
	MinAvailable int64
	MinPending   int64
}

// ReconcileReport compares a stored balance with the sum of its entries.
type ReconcileReport struct {
	TutorID         string `json:"tutorId"`
	StoredPending   int64  `json:"storedPending"`
	StoredAvailable int64  `json:"storedAvailable"`
	EntryPending    int64  `json:"entryPending"`
	EntryAvailable  int64  `json:"entryAvailable"`
	Balanced        bool   `json:"balanced"`
}
