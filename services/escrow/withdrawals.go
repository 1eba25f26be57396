package escrow

import (
	"context"
	"fmt"

	"tutorbook/models"
	"tutorbook/utils"
)

// AllocateWithdrawal moves amount from available to on-hold with one guarded
// decrement, then drains available entries oldest first. Callers must run it
// inside the transaction that records the withdrawal.
func (l *DefaultLedger) AllocateWithdrawal(ctx context.Context, tutorID string, amount int64) ([]models.WithdrawalAllocation, error) {
	var allocs []models.WithdrawalAllocation
	err := l.Tx.RunInTx(ctx, func(ctx context.Context) error {
		allocs = nil
		if _, err := l.Repo.ApplyDelta(ctx, tutorID, models.BalanceDelta{
			Available:    -amount,
			OnHold:       amount,
			MinAvailable: amount,
		}); err != nil {
			return err
		}

		entries, err := l.Repo.ListEntries(ctx, tutorID, models.BucketAvailable)
		if err != nil {
			return err
		}
		left := amount
		for i := range entries {
			if left == 0 {
				break
			}
			e := &entries[i]
			take := min(e.Outstanding(), left)
			if take == 0 {
				continue
			}
			e.PaidOut += take
			if e.Outstanding() == 0 {
				e.Bucket = models.BucketPaidOut
			}
			if err := l.Repo.UpdateEntry(ctx, e); err != nil {
				return err
			}
			allocs = append(allocs, models.WithdrawalAllocation{EntryID: e.ID, Amount: take})
			left -= take
		}
		if left > 0 {
			return fmt.Errorf("available entries of tutor %s short by %d", tutorID, left)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

// ReverseAllocation puts a failed or cancelled withdrawal back: each drained
// entry gets its share back and the held amount returns to available.
func (l *DefaultLedger) ReverseAllocation(ctx context.Context, tutorID string, allocs []models.WithdrawalAllocation) error {
	return l.Tx.RunInTx(ctx, func(ctx context.Context) error {
		var total int64
		for _, a := range allocs {
			e, err := l.Repo.GetEntry(ctx, a.EntryID)
			if err != nil {
				return err
			}
			if e.PaidOut < a.Amount {
				return &utils.ConcurrencyConflictError{Resource: "escrow entry " + e.ID}
			}
			e.PaidOut -= a.Amount
			e.Bucket = models.BucketAvailable
			if err := l.Repo.UpdateEntry(ctx, e); err != nil {
				return err
			}
			total += a.Amount
		}
		_, err := l.Repo.ApplyDelta(ctx, tutorID, models.BalanceDelta{Available: total, OnHold: -total})
		return err
	})
}

// SettleWithdrawal records that the held amount left the platform.
func (l *DefaultLedger) SettleWithdrawal(ctx context.Context, tutorID string, amount int64) error {
	_, err := l.Repo.ApplyDelta(ctx, tutorID, models.BalanceDelta{OnHold: -amount, Withdrawn: amount})
	return err
}
