package models

import "time"

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
	WithdrawalCancelled  WithdrawalStatus = "cancelled"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed || s == WithdrawalCancelled
}

type WithdrawalRequest struct {
	ID          string                 `bson:"id" json:"id"`
	TutorID     string                 `bson:"tutorId" json:"tutorId"`
	Amount      int64                  `bson:"amount" json:"amount"`
	Status      WithdrawalStatus       `bson:"status" json:"status"`
	Allocations []WithdrawalAllocation `bson:"allocations" json:"allocations"`
	Reason      string                 `bson:"reason,omitempty" json:"reason,omitempty"`
	PayoutRef   string                 `bson:"payoutRef,omitempty" json:"payoutRef,omitempty"`
	RequestedAt time.Time              `bson:"requestedAt" json:"requestedAt"`
	ResolvedAt  *time.Time             `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	Version     int                    `bson:"version" json:"version"`
}

// WithdrawalAllocation records how much of an escrow entry a withdrawal drained.
type WithdrawalAllocation struct {
	EntryID string `bson:"entryId" json:"entryId"`
	Amount  int64  `bson:"amount" json:"amount"`
}
