package escrow

import (
	"context"
	"fmt"
	"time"

	"tutorbook/database"
	escrowRepo "tutorbook/database/repository/escrow"
	"tutorbook/models"
	"tutorbook/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger keeps the per-booking entries and the tutor balances they roll up
// into. Every method joins the caller's transaction when there is one.
type Ledger interface {
	Credit(ctx context.Context, tutorID, bookingID string, gross int64) (*models.EscrowEntry, error)
	Release(ctx context.Context, entryID string) (*models.EscrowEntry, error)
	RefundToLearner(ctx context.Context, entryID string, refund int64) (*models.EscrowEntry, error)
	GetBalance(ctx context.Context, tutorID string) (*models.BalanceView, error)
	ListEntries(ctx context.Context, tutorID string) ([]models.EscrowEntry, error)
	Reconcile(ctx context.Context, tutorID string) (*models.ReconcileReport, error)
	ReconcileAll(ctx context.Context) ([]models.ReconcileReport, error)

	AllocateWithdrawal(ctx context.Context, tutorID string, amount int64) ([]models.WithdrawalAllocation, error)
	ReverseAllocation(ctx context.Context, tutorID string, allocs []models.WithdrawalAllocation) error
	SettleWithdrawal(ctx context.Context, tutorID string, amount int64) error
}

type DefaultLedger struct {
	Repo   escrowRepo.EscrowRepository
	Tx     database.TxRunner
	FeeBps int64
	Logger *zap.Logger
	Now    func() time.Time
}

func NewLedger(repo escrowRepo.EscrowRepository, tx database.TxRunner, policy models.Policy, logger *zap.Logger) *DefaultLedger {
	return &DefaultLedger{Repo: repo, Tx: tx, FeeBps: policy.PlatformFeeBps, Logger: logger, Now: func() time.Time { return time.Now().UTC() }}
}

// SplitFee divides gross into the platform fee (rounded down) and the tutor
// payout. fee + payout == gross for every input.
func SplitFee(gross, feeBps int64) (fee, payout int64) {
	fee = gross * feeBps / 10000
	return fee, gross - fee
}

// Credit opens a pending entry for a paid booking. A second credit for the
// same booking returns the existing entry unchanged.
func (l *DefaultLedger) Credit(ctx context.Context, tutorID, bookingID string, gross int64) (*models.EscrowEntry, error) {
	if gross <= 0 {
		return nil, utils.NewValidationError("gross", "must be positive")
	}
	var entry *models.EscrowEntry
	err := l.Tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := l.Repo.GetEntryByBooking(ctx, bookingID)
		if err == nil {
			entry = existing
			return nil
		}
		if !utils.IsKind(err, utils.KindNotFound) {
			return err
		}

		fee, payout := SplitFee(gross, l.FeeBps)
		entry = &models.EscrowEntry{
			ID:        uuid.New().String(),
			TutorID:   tutorID,
			BookingID: bookingID,
			Gross:     gross,
			Fee:       fee,
			Payout:    payout,
			Bucket:    models.BucketPending,
			CreatedAt: l.Now(),
		}
		if err := l.Repo.CreateEntry(ctx, entry); err != nil {
			return err
		}
		_, err = l.Repo.ApplyDelta(ctx, tutorID, models.BalanceDelta{Pending: payout})
		return err
	})
	if err != nil {
		l.Logger.Error("escrow credit failed", zap.String("bookingId", bookingID), zap.String("tutorId", tutorID), zap.Error(err))
		return nil, err
	}
	return entry, nil
}

// Release moves a pending entry to available.
func (l *DefaultLedger) Release(ctx context.Context, entryID string) (*models.EscrowEntry, error) {
	var entry *models.EscrowEntry
	err := l.Tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := l.Repo.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		entry = e
		switch e.Bucket {
		case models.BucketAvailable, models.BucketPaidOut:
			return nil
		case models.BucketRefunded:
			return &utils.InvalidTransitionError{Current: string(e.Bucket), Attempted: "release"}
		}

		amount := e.Outstanding()
		now := l.Now()
		e.Bucket = models.BucketAvailable
		e.ReleasedAt = &now
		if err := l.Repo.UpdateEntry(ctx, e); err != nil {
			return err
		}
		_, err = l.Repo.ApplyDelta(ctx, e.TutorID, models.BalanceDelta{
			Pending:     -amount,
			Available:   amount,
			TotalEarned: amount,
			MinPending:  amount,
		})
		return err
	})
	if err != nil {
		l.Logger.Error("escrow release failed", zap.String("entryId", entryID), zap.Error(err))
		return nil, err
	}
	return entry, nil
}

// RefundToLearner closes a pending entry. The whole unreleased payout is
// reversed from the tutor; refund records what goes back to the learner and
// the platform keeps the rest of gross.
func (l *DefaultLedger) RefundToLearner(ctx context.Context, entryID string, refund int64) (*models.EscrowEntry, error) {
	var entry *models.EscrowEntry
	err := l.Tx.RunInTx(ctx, func(ctx context.Context) error {
		e, err := l.Repo.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		entry = e
		switch e.Bucket {
		case models.BucketRefunded:
			return nil
		case models.BucketAvailable, models.BucketPaidOut:
			return &utils.InvalidTransitionError{Current: string(e.Bucket), Attempted: "refund"}
		}
		if refund < 0 || refund > e.Gross {
			return utils.NewValidationError("refund", "must be between 0 and %d", e.Gross)
		}

		amount := e.Outstanding()
		now := l.Now()
		e.Bucket = models.BucketRefunded
		e.RefundAmount = refund
		e.ResolvedAt = &now
		if err := l.Repo.UpdateEntry(ctx, e); err != nil {
			return err
		}
		_, err = l.Repo.ApplyDelta(ctx, e.TutorID, models.BalanceDelta{Pending: -amount, MinPending: amount})
		return err
	})
	if err != nil {
		l.Logger.Error("escrow refund failed", zap.String("entryId", entryID), zap.Int64("refund", refund), zap.Error(err))
		return nil, err
	}
	return entry, nil
}

func (l *DefaultLedger) GetBalance(ctx context.Context, tutorID string) (*models.BalanceView, error) {
	b, err := l.Repo.GetBalance(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	return &models.BalanceView{
		TutorID:     tutorID,
		Available:   b.Available,
		Pending:     b.Pending,
		Total:       b.Available + b.Pending,
		TotalEarned: b.TotalEarned,
		OnHold:      b.OnHold,
		Withdrawn:   b.Withdrawn,
	}, nil
}

func (l *DefaultLedger) ListEntries(ctx context.Context, tutorID string) ([]models.EscrowEntry, error) {
	return l.Repo.ListEntries(ctx, tutorID)
}

// Reconcile recomputes pending and available from the entries and compares
// them with the stored balance.
func (l *DefaultLedger) Reconcile(ctx context.Context, tutorID string) (*models.ReconcileReport, error) {
	var report models.ReconcileReport
	err := l.Tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := l.Repo.GetBalance(ctx, tutorID)
		if err != nil {
			return err
		}
		entries, err := l.Repo.ListEntries(ctx, tutorID, models.BucketPending, models.BucketAvailable)
		if err != nil {
			return err
		}
		report = models.ReconcileReport{TutorID: tutorID, StoredPending: b.Pending, StoredAvailable: b.Available}
		for _, e := range entries {
			if e.Bucket == models.BucketPending {
				report.EntryPending += e.Outstanding()
			} else {
				report.EntryAvailable += e.Outstanding()
			}
		}
		report.Balanced = report.EntryPending == report.StoredPending && report.EntryAvailable == report.StoredAvailable
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !report.Balanced {
		l.Logger.Error("tutor balance out of line with escrow entries",
			zap.String("tutorId", tutorID),
			zap.Int64("storedPending", report.StoredPending),
			zap.Int64("entryPending", report.EntryPending),
			zap.Int64("storedAvailable", report.StoredAvailable),
			zap.Int64("entryAvailable", report.EntryAvailable))
	}
	return &report, nil
}

func (l *DefaultLedger) ReconcileAll(ctx context.Context) ([]models.ReconcileReport, error) {
	ids, err := l.Repo.ListTutorIDs(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]models.ReconcileReport, 0, len(ids))
	for _, id := range ids {
		r, err := l.Reconcile(ctx, id)
		if err != nil {
			return reports, fmt.Errorf("reconcile tutor %s: %w", id, err)
		}
		reports = append(reports, *r)
	}
	return reports, nil
}
