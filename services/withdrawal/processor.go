package withdrawal

import (
	"context"
	"fmt"
	"time"

	"tutorbook/database"
	withdrawalRepo "tutorbook/database/repository/withdrawal"
	"tutorbook/models"
	"tutorbook/services/escrow"
	"tutorbook/services/notification"
	"tutorbook/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Processor turns available tutor balance into payout requests that an
// operator fulfils outside the platform.
type Processor interface {
	RequestWithdrawal(ctx context.Context, tutorID string, amount int64) (*models.WithdrawalRequest, error)
	Get(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	ListByTutor(ctx context.Context, tutorID string) ([]models.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error)

	MarkProcessing(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	Complete(ctx context.Context, id, payoutRef string) (*models.WithdrawalRequest, error)
	Fail(ctx context.Context, id, reason string) (*models.WithdrawalRequest, error)
	Cancel(ctx context.Context, tutorID, id string) (*models.WithdrawalRequest, error)
}

var moves = map[models.WithdrawalStatus][]models.WithdrawalStatus{
	models.WithdrawalPending:    {models.WithdrawalProcessing, models.WithdrawalFailed, models.WithdrawalCancelled},
	models.WithdrawalProcessing: {models.WithdrawalCompleted, models.WithdrawalFailed},
}

func canMove(from, to models.WithdrawalStatus) bool {
	for _, s := range moves[from] {
		if s == to {
			return true
		}
	}
	return false
}

type DefaultProcessor struct {
	Repo     withdrawalRepo.WithdrawalRepository
	Tx       database.TxRunner
	Ledger   escrow.Ledger
	Locker   utils.Locker
	Notifier notification.NotificationService
	Min      int64
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewProcessor(
	repo withdrawalRepo.WithdrawalRepository,
	tx database.TxRunner,
	ledger escrow.Ledger,
	locker utils.Locker,
	notifier notification.NotificationService,
	policy models.Policy,
	logger *zap.Logger,
) *DefaultProcessor {
	return &DefaultProcessor{
		Repo:     repo,
		Tx:       tx,
		Ledger:   ledger,
		Locker:   locker,
		Notifier: notifier,
		Min:      policy.MinWithdrawal,
		Logger:   logger,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestWithdrawal holds amount out of the tutor's available balance and
// records the request in one transaction. A request the balance cannot
// cover fails with InsufficientBalanceError and changes nothing.
func (p *DefaultProcessor) RequestWithdrawal(ctx context.Context, tutorID string, amount int64) (*models.WithdrawalRequest, error) {
	if tutorID == "" {
		return nil, utils.NewValidationError("tutorId", "is required")
	}
	if amount < p.Min {
		return nil, utils.NewValidationError("amount", "minimum withdrawal is %d", p.Min)
	}

	w := &models.WithdrawalRequest{
		ID:          uuid.New().String(),
		TutorID:     tutorID,
		Amount:      amount,
		Status:      models.WithdrawalPending,
		RequestedAt: p.Now(),
	}
	err := p.Tx.RunInTx(ctx, func(ctx context.Context) error {
		allocs, err := p.Ledger.AllocateWithdrawal(ctx, tutorID, amount)
		if err != nil {
			return err
		}
		w.Allocations = allocs
		w.Version = 0
		return p.Repo.Create(ctx, w)
	})
	if err != nil {
		if utils.IsKind(err, utils.KindInsufficientBalance) {
			p.Logger.Info("withdrawal refused", zap.String("tutorId", tutorID), zap.Int64("amount", amount), zap.Error(err))
			return nil, err
		}
		return nil, fmt.Errorf("request withdrawal: %w", err)
	}

	p.Logger.Info("withdrawal requested", zap.String("withdrawalId", w.ID), zap.String("tutorId", tutorID), zap.Int64("amount", amount))
	p.notify(ctx, w)
	return w, nil
}

func (p *DefaultProcessor) Get(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	return p.Repo.GetByID(ctx, id)
}

func (p *DefaultProcessor) ListByTutor(ctx context.Context, tutorID string) ([]models.WithdrawalRequest, error) {
	return p.Repo.ListByTutor(ctx, tutorID)
}

func (p *DefaultProcessor) ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	return p.Repo.ListByStatus(ctx, status)
}

func (p *DefaultProcessor) MarkProcessing(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	return p.move(ctx, id, models.WithdrawalProcessing, nil, nil)
}

// Complete settles the held amount as paid out.
func (p *DefaultProcessor) Complete(ctx context.Context, id, payoutRef string) (*models.WithdrawalRequest, error) {
	return p.move(ctx, id, models.WithdrawalCompleted, nil, func(ctx context.Context, w *models.WithdrawalRequest) error {
		w.PayoutRef = payoutRef
		return p.Ledger.SettleWithdrawal(ctx, w.TutorID, w.Amount)
	})
}

// Fail credits the held amount back to available.
func (p *DefaultProcessor) Fail(ctx context.Context, id, reason string) (*models.WithdrawalRequest, error) {
	if reason == "" {
		return nil, utils.NewValidationError("reason", "is required")
	}
	return p.move(ctx, id, models.WithdrawalFailed, nil, func(ctx context.Context, w *models.WithdrawalRequest) error {
		w.Reason = reason
		return p.Ledger.ReverseAllocation(ctx, w.TutorID, w.Allocations)
	})
}

// Cancel withdraws a tutor's own request while it is still pending.
func (p *DefaultProcessor) Cancel(ctx context.Context, tutorID, id string) (*models.WithdrawalRequest, error) {
	owned := func(w *models.WithdrawalRequest) error {
		if w.TutorID != tutorID {
			return &utils.NotFoundError{Resource: "withdrawal", ID: id}
		}
		return nil
	}
	return p.move(ctx, id, models.WithdrawalCancelled, owned, func(ctx context.Context, w *models.WithdrawalRequest) error {
		w.Reason = "cancelled by tutor"
		return p.Ledger.ReverseAllocation(ctx, w.TutorID, w.Allocations)
	})
}

func (p *DefaultProcessor) move(
	ctx context.Context,
	id string,
	to models.WithdrawalStatus,
	check func(w *models.WithdrawalRequest) error,
	effects func(ctx context.Context, w *models.WithdrawalRequest) error,
) (*models.WithdrawalRequest, error) {
	release, err := p.Locker.Acquire(ctx, "withdrawal:"+id)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		w       *models.WithdrawalRequest
		applied bool
	)
	err = p.Tx.RunInTx(ctx, func(ctx context.Context) error {
		applied = false
		cur, err := p.Repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		w = cur
		if check != nil {
			if err := check(w); err != nil {
				return err
			}
		}
		if w.Status == to {
			return nil
		}
		if !canMove(w.Status, to) {
			return &utils.InvalidTransitionError{Current: string(w.Status), Attempted: string(to)}
		}
		if effects != nil {
			if err := effects(ctx, w); err != nil {
				return err
			}
		}
		w.Status = to
		if to.Terminal() {
			now := p.Now()
			w.ResolvedAt = &now
		}
		applied = true
		return p.Repo.Update(ctx, w)
	})
	if err != nil {
		if effects != nil && !utils.IsKind(err, utils.KindInvalidTransition) && !utils.IsKind(err, utils.KindNotFound) {
			p.Logger.Error("withdrawal transition failed", zap.String("withdrawalId", id), zap.String("to", string(to)), zap.Error(err))
		}
		return nil, err
	}
	if applied {
		p.Logger.Info("withdrawal updated", zap.String("withdrawalId", w.ID), zap.String("tutorId", w.TutorID), zap.String("status", string(w.Status)))
		p.notify(ctx, w)
	}
	return w, nil
}

func (p *DefaultProcessor) notify(ctx context.Context, w *models.WithdrawalRequest) {
	p.Notifier.Notify(ctx, models.DomainEvent{
		Type:       models.EventWithdrawal,
		TutorID:    w.TutorID,
		Data:       map[string]string{"withdrawalId": w.ID, "status": string(w.Status), "amount": fmt.Sprint(w.Amount)},
		OccurredAt: p.Now(),
	})
}
