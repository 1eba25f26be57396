package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tutorbook/models"
	"tutorbook/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailedTransactionUndoesEveryWrite(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Slots.Reserve(ctx, models.Occurrence{Key: "occ-1", Capacity: 2})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := store.Slots.Reserve(ctx, models.Occurrence{Key: "occ-1", Capacity: 2}); err != nil {
			return err
		}
		if _, err := store.Escrow.ApplyDelta(ctx, "tutor-1", models.BalanceDelta{Pending: 500}); err != nil {
			return err
		}
		// A nested call joins the outer transaction.
		if err := store.Tx.RunInTx(ctx, func(ctx context.Context) error {
			_, err := store.Escrow.ApplyDelta(ctx, "tutor-1", models.BalanceDelta{Available: 100})
			return err
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	occ, err := store.Slots.GetOccurrence(ctx, "occ-1")
	require.NoError(t, err)
	assert.Equal(t, 1, occ.Reserved)
	assert.Equal(t, models.SlotOpen, occ.Status)

	bal, err := store.Escrow.GetBalance(ctx, "tutor-1")
	require.NoError(t, err)
	assert.Zero(t, bal.Pending)
	assert.Zero(t, bal.Available)
}

func TestGuardedDeltaRefusesOverdraw(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Escrow.ApplyDelta(ctx, "tutor-1", models.BalanceDelta{Available: 100})
	require.NoError(t, err)

	_, err = store.Escrow.ApplyDelta(ctx, "tutor-1", models.BalanceDelta{Available: -150, OnHold: 150, MinAvailable: 150})
	assert.True(t, utils.IsKind(err, utils.KindInsufficientBalance))

	bal, err := store.Escrow.GetBalance(ctx, "tutor-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Available)
	assert.Zero(t, bal.OnHold)
}

func TestConcurrentReservationsNeverOverbook(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Slots.Reserve(ctx, models.Occurrence{Key: "occ-1", Capacity: 5})
			if err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
				return
			}
			assert.True(t, utils.IsKind(err, utils.KindCapacityExceeded), err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
	occ, err := store.Slots.GetOccurrence(ctx, "occ-1")
	require.NoError(t, err)
	assert.Equal(t, 5, occ.Reserved)
	assert.Equal(t, models.SlotFull, occ.Status)
}
