package withdrawal

import (
	"context"
	"sync"
	"testing"

	"tutorbook/database/memstore"
	"tutorbook/models"
	"tutorbook/services/escrow"
	"tutorbook/services/notification"
	"tutorbook/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const tutorID = "tutor-1"

type fixture struct {
	ctx    context.Context
	ledger *escrow.DefaultLedger
	proc   *DefaultProcessor
	events *notification.Recorder
}

// newFixture gives the tutor 180000 available from one released booking
// and 90000 still pending from another.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.NewStore()
	policy := models.DefaultPolicy()
	f := &fixture{ctx: context.Background(), events: &notification.Recorder{}}
	f.ledger = escrow.NewLedger(store.Escrow, store.Tx, policy, zap.NewNop())
	f.proc = NewProcessor(store.Withdrawals, store.Tx, f.ledger, utils.NewLocalLocker(), f.events, policy, zap.NewNop())

	e, err := f.ledger.Credit(f.ctx, tutorID, "booking-1", 200000)
	require.NoError(t, err)
	_, err = f.ledger.Release(f.ctx, e.ID)
	require.NoError(t, err)
	_, err = f.ledger.Credit(f.ctx, tutorID, "booking-2", 100000)
	require.NoError(t, err)
	return f
}

func (f *fixture) balance(t *testing.T) *models.BalanceView {
	t.Helper()
	b, err := f.ledger.GetBalance(f.ctx, tutorID)
	require.NoError(t, err)
	return b
}

func (f *fixture) assertBalanced(t *testing.T) {
	t.Helper()
	r, err := f.ledger.Reconcile(f.ctx, tutorID)
	require.NoError(t, err)
	assert.True(t, r.Balanced, "%+v", r)
}

func TestRequestHoldsAvailableBalance(t *testing.T) {
	f := newFixture(t)

	w, err := f.proc.RequestWithdrawal(f.ctx, tutorID, 100000)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, w.Status)
	require.Len(t, w.Allocations, 1)
	assert.Equal(t, int64(100000), w.Allocations[0].Amount)

	bal := f.balance(t)
	assert.Equal(t, int64(80000), bal.Available)
	assert.Equal(t, int64(100000), bal.OnHold)
	assert.Equal(t, int64(90000), bal.Pending)
	f.assertBalanced(t)
	assert.Equal(t, []models.EventType{models.EventWithdrawal}, f.events.Types())
}

func TestRequestAboveAvailableChangesNothing(t *testing.T) {
	f := newFixture(t)
	before := f.balance(t)

	_, err := f.proc.RequestWithdrawal(f.ctx, tutorID, 200000)
	require.Error(t, err)
	assert.Equal(t, utils.KindInsufficientBalance, utils.KindOf(err))

	assert.Equal(t, before, f.balance(t))
	list, err := f.proc.ListByTutor(f.ctx, tutorID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRequestBelowMinimumIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.proc.RequestWithdrawal(f.ctx, tutorID, f.proc.Min-1)
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
	assert.Equal(t, int64(180000), f.balance(t).Available)
}

func TestCompleteSettlesHeldAmount(t *testing.T) {
	f := newFixture(t)
	w, err := f.proc.RequestWithdrawal(f.ctx, tutorID, 180000)
	require.NoError(t, err)

	w, err = f.proc.MarkProcessing(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalProcessing, w.Status)

	_, err = f.proc.Cancel(f.ctx, tutorID, w.ID)
	assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))

	w, err = f.proc.Complete(f.ctx, w.ID, "bank-ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, w.Status)
	assert.Equal(t, "bank-ref-1", w.PayoutRef)
	require.NotNil(t, w.ResolvedAt)

	bal := f.balance(t)
	assert.Equal(t, int64(0), bal.Available)
	assert.Equal(t, int64(0), bal.OnHold)
	assert.Equal(t, int64(180000), bal.Withdrawn)
	f.assertBalanced(t)

	// Completing twice is a no-op.
	_, err = f.proc.Complete(f.ctx, w.ID, "bank-ref-1")
	require.NoError(t, err)
	assert.Equal(t, int64(180000), f.balance(t).Withdrawn)
}

func TestFailAndCancelCreditBack(t *testing.T) {
	for _, name := range []string{"fail", "cancel"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			w, err := f.proc.RequestWithdrawal(f.ctx, tutorID, 150000)
			require.NoError(t, err)

			if name == "fail" {
				w, err = f.proc.Fail(f.ctx, w.ID, "bank rejected account")
				require.NoError(t, err)
				assert.Equal(t, models.WithdrawalFailed, w.Status)
			} else {
				_, err = f.proc.Cancel(f.ctx, "tutor-2", w.ID)
				assert.Equal(t, utils.KindNotFound, utils.KindOf(err))
				w, err = f.proc.Cancel(f.ctx, tutorID, w.ID)
				require.NoError(t, err)
				assert.Equal(t, models.WithdrawalCancelled, w.Status)
			}

			bal := f.balance(t)
			assert.Equal(t, int64(180000), bal.Available)
			assert.Equal(t, int64(0), bal.OnHold)
			f.assertBalanced(t)

			_, err = f.proc.MarkProcessing(f.ctx, w.ID)
			assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))
		})
	}
}

func TestConcurrentRequestsNeverOverdraw(t *testing.T) {
	f := newFixture(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.proc.RequestWithdrawal(f.ctx, tutorID, 50000)
			if err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
				return
			}
			assert.Equal(t, utils.KindInsufficientBalance, utils.KindOf(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	bal := f.balance(t)
	assert.Equal(t, int64(30000), bal.Available)
	assert.Equal(t, int64(150000), bal.OnHold)
	f.assertBalanced(t)
}
