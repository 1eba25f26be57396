package escrow

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"tutorbook/database/memstore"
	"tutorbook/models"
	"tutorbook/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLedger(t *testing.T) *DefaultLedger {
	t.Helper()
	store := memstore.NewStore()
	return NewLedger(store.Escrow, store.Tx, models.DefaultPolicy(), zap.NewNop())
}

func TestSplitFeeAlwaysSumsToGross(t *testing.T) {
	for _, gross := range []int64{1, 9, 10, 99, 12345, 200000, 999999937} {
		for _, bps := range []int64{0, 1, 250, 1000, 3333, 10000} {
			fee, payout := SplitFee(gross, bps)
			assert.Equal(t, gross, fee+payout, "gross=%d bps=%d", gross, bps)
			assert.GreaterOrEqual(t, payout, int64(0))
		}
	}
	fee, payout := SplitFee(200000, 1000)
	assert.Equal(t, int64(20000), fee)
	assert.Equal(t, int64(180000), payout)
}

func TestCreditReleaseFlow(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	e, err := l.Credit(ctx, "t1", "b1", 200000)
	require.NoError(t, err)
	assert.Equal(t, models.BucketPending, e.Bucket)

	again, err := l.Credit(ctx, "t1", "b1", 200000)
	require.NoError(t, err)
	assert.Equal(t, e.ID, again.ID)

	bal, err := l.GetBalance(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(180000), bal.Pending)
	assert.Equal(t, int64(0), bal.Available)

	_, err = l.Release(ctx, e.ID)
	require.NoError(t, err)
	_, err = l.Release(ctx, e.ID)
	require.NoError(t, err)

	bal, err = l.GetBalance(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Pending)
	assert.Equal(t, int64(180000), bal.Available)
	assert.Equal(t, int64(180000), bal.TotalEarned)

	_, err = l.RefundToLearner(ctx, e.ID, 200000)
	assert.True(t, utils.IsKind(err, utils.KindInvalidTransition))
}

func TestRefundReversesPendingCredit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	e, err := l.Credit(ctx, "t1", "b1", 200000)
	require.NoError(t, err)
	refunded, err := l.RefundToLearner(ctx, e.ID, 100000)
	require.NoError(t, err)
	assert.Equal(t, models.BucketRefunded, refunded.Bucket)
	assert.Equal(t, int64(100000), refunded.RefundAmount)

	bal, err := l.GetBalance(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Total)

	_, err = l.Release(ctx, e.ID)
	assert.True(t, utils.IsKind(err, utils.KindInvalidTransition))
}

func TestWithdrawalAllocationGuardsBalance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for i := range 2 {
		e, err := l.Credit(ctx, "t1", fmt.Sprintf("b%d", i), 100000)
		require.NoError(t, err)
		_, err = l.Release(ctx, e.ID)
		require.NoError(t, err)
	}

	_, err := l.AllocateWithdrawal(ctx, "t1", 180001)
	var ib *utils.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, int64(180000), ib.Available)

	allocs, err := l.AllocateWithdrawal(ctx, "t1", 120000)
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, int64(90000), allocs[0].Amount)
	assert.Equal(t, int64(30000), allocs[1].Amount)

	entries, err := l.ListEntries(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.BucketPaidOut, entries[0].Bucket)
	assert.Equal(t, models.BucketAvailable, entries[1].Bucket)

	require.NoError(t, l.ReverseAllocation(ctx, "t1", allocs))
	bal, err := l.GetBalance(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(180000), bal.Available)
	assert.Equal(t, int64(0), bal.OnHold)

	report, err := l.Reconcile(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, report.Balanced)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	e, err := l.Credit(ctx, "t1", "b1", 100000)
	require.NoError(t, err)
	_, err = l.Release(ctx, e.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.AllocateWithdrawal(ctx, "t1", 20000); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, granted)
	bal, err := l.GetBalance(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), bal.Available)
	assert.Equal(t, int64(80000), bal.OnHold)
}

func TestRandomizedOperationsStayReconciled(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	tutors := []string{"t1", "t2", "t3"}

	var entries []*models.EscrowEntry
	var held []struct {
		tutor  string
		allocs []models.WithdrawalAllocation
	}

	for i := range 500 {
		tutor := tutors[rng.Intn(len(tutors))]
		switch op := rng.Intn(5); {
		case op == 0 || len(entries) == 0:
			e, err := l.Credit(ctx, tutor, fmt.Sprintf("b%d", i), int64(1+rng.Intn(500000)))
			require.NoError(t, err)
			entries = append(entries, e)
		case op == 1:
			_, _ = l.Release(ctx, entries[rng.Intn(len(entries))].ID)
		case op == 2:
			e := entries[rng.Intn(len(entries))]
			_, _ = l.RefundToLearner(ctx, e.ID, e.Gross/2)
		case op == 3:
			allocs, err := l.AllocateWithdrawal(ctx, tutor, int64(1+rng.Intn(300000)))
			if err == nil {
				held = append(held, struct {
					tutor  string
					allocs []models.WithdrawalAllocation
				}{tutor, allocs})
			}
		case op == 4 && len(held) > 0:
			k := rng.Intn(len(held))
			require.NoError(t, l.ReverseAllocation(ctx, held[k].tutor, held[k].allocs))
			held = append(held[:k], held[k+1:]...)
		}
	}

	reports, err := l.ReconcileAll(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, reports)
	for _, r := range reports {
		assert.True(t, r.Balanced, "tutor %s: %+v", r.TutorID, r)
		assert.GreaterOrEqual(t, r.StoredAvailable, int64(0))
		assert.GreaterOrEqual(t, r.StoredPending, int64(0))
	}

	for _, e := range entries {
		stored, err := l.Repo.GetEntry(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, stored.Gross, stored.Fee+stored.Payout)
		assert.Equal(t, e.Gross, stored.Gross)
	}
}
