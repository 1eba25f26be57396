package slots

import (
	"context"
	"sync"
	"testing"
	"time"

	"tutorbook/database/memstore"
	"tutorbook/models"
	"tutorbook/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Monday 2030-01-07 09:00 UTC.
var monday = time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *DefaultSlotService {
	t.Helper()
	store := memstore.NewStore()
	svc := NewSlotService(store.Slots, store.Tx, models.DefaultPolicy(), zap.NewNop())
	svc.Now = func() time.Time { return monday.Add(-7 * 24 * time.Hour) }
	return svc
}

func TestCreateSlotValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := map[string]CreateSlotInput{
		"missing tutor":  {Start: monday, End: monday.Add(time.Hour), Mode: models.ModeOnline, Price: 1, Capacity: 1},
		"end before":     {TutorID: "t1", Start: monday, End: monday.Add(-time.Hour), Mode: models.ModeOnline, Price: 1, Capacity: 1},
		"zero capacity":  {TutorID: "t1", Start: monday, End: monday.Add(time.Hour), Mode: models.ModeOnline, Price: 1},
		"bad mode":       {TutorID: "t1", Start: monday, End: monday.Add(time.Hour), Mode: "hybrid", Price: 1, Capacity: 1},
		"free":           {TutorID: "t1", Start: monday, End: monday.Add(time.Hour), Mode: models.ModeOnline, Capacity: 1},
		"empty weekdays": {TutorID: "t1", Start: monday, End: monday.Add(time.Hour), Mode: models.ModeOnline, Price: 1, Capacity: 1, Recurrence: &models.Recurrence{Until: monday.AddDate(0, 1, 0)}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateSlot(ctx, in)
			require.Error(t, err)
			assert.Equal(t, utils.KindValidation, utils.KindOf(err))
		})
	}
}

func TestReserveCapacityLastUnitRace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	slot, err := svc.CreateSlot(ctx, CreateSlotInput{
		TutorID: "t1", Start: monday, End: monday.Add(time.Hour),
		Mode: models.ModeOnline, Price: 200000, Capacity: 1,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ReserveCapacity(ctx, slot.ID, monday)
		}(i)
	}
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case utils.IsKind(err, utils.KindCapacityExceeded):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, full)

	stored, err := svc.Repo.GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotFull, stored.Status)
}

func TestReleaseReopensSlot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	slot, err := svc.CreateSlot(ctx, CreateSlotInput{
		TutorID: "t1", Start: monday, End: monday.Add(time.Hour),
		Mode: models.ModeOffline, Price: 100, Capacity: 1,
	})
	require.NoError(t, err)
	res, err := svc.ReserveCapacity(ctx, slot.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Remaining)

	require.NoError(t, svc.ReleaseCapacity(ctx, res.OccurrenceKey))
	stored, err := svc.Repo.GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotOpen, stored.Status)

	_, err = svc.ReserveCapacity(ctx, slot.ID, monday)
	assert.NoError(t, err)
}

func TestRecurringOccurrencesAreIndependent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	slot, err := svc.CreateSlot(ctx, CreateSlotInput{
		TutorID: "t1", Start: monday, End: monday.Add(90 * time.Minute),
		Mode: models.ModeOnline, Price: 100, Capacity: 1,
		Recurrence: &models.Recurrence{
			Weekdays: []time.Weekday{time.Monday, time.Wednesday},
			Until:    monday.AddDate(0, 0, 14),
		},
	})
	require.NoError(t, err)

	var starts []time.Time
	for occ, err := range svc.ListOpenSlots(ctx, models.SlotFilter{TutorID: "t1", From: monday.AddDate(0, 0, -1), To: monday.AddDate(0, 1, 0)}) {
		require.NoError(t, err)
		starts = append(starts, occ.Start)
	}
	// Mon 7, Wed 9, Mon 14, Wed 16, Mon 21.
	require.Len(t, starts, 5)
	assert.Equal(t, monday.AddDate(0, 0, 2), starts[1])

	_, err = svc.ReserveCapacity(ctx, slot.ID, monday.AddDate(0, 0, 2))
	require.NoError(t, err)
	_, err = svc.ReserveCapacity(ctx, slot.ID, monday.AddDate(0, 0, 2))
	assert.True(t, utils.IsKind(err, utils.KindCapacityExceeded))

	// The series stays open; only that one occurrence is full.
	stored, err := svc.Repo.GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotOpen, stored.Status)

	var again int
	for _, err := range svc.ListOpenSlots(ctx, models.SlotFilter{TutorID: "t1", From: monday.AddDate(0, 0, -1), To: monday.AddDate(0, 1, 0)}) {
		require.NoError(t, err)
		again++
	}
	assert.Equal(t, 4, again)

	_, err = svc.ReserveCapacity(ctx, slot.ID, monday.AddDate(0, 0, 1))
	assert.True(t, utils.IsKind(err, utils.KindValidation), "tuesday is not an occurrence")
}

func TestListOpenSlotsStopsEarly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateSlot(ctx, CreateSlotInput{
		TutorID: "t1", Start: monday, End: monday.Add(time.Hour),
		Mode: models.ModeOnline, Price: 100, Capacity: 3,
		Recurrence: &models.Recurrence{
			Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			Until:    monday.AddDate(5, 0, 0),
		},
	})
	require.NoError(t, err)

	n := 0
	for range svc.ListOpenSlots(ctx, models.SlotFilter{From: monday}) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestCancelSlotStopsReservations(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	slot, err := svc.CreateSlot(ctx, CreateSlotInput{
		TutorID: "t1", Start: monday, End: monday.Add(time.Hour),
		Mode: models.ModeOnline, Price: 100, Capacity: 2,
	})
	require.NoError(t, err)

	_, err = svc.CancelSlot(ctx, "someone-else", slot.ID)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))

	_, err = svc.CancelSlot(ctx, "t1", slot.ID)
	require.NoError(t, err)
	_, err = svc.ReserveCapacity(ctx, slot.ID, monday)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
}

func TestAdHocRangeReservation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rule, err := svc.CreateAvailabilityRule(ctx, RuleInput{
		TutorID: "t1", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60,
		CellMinutes: 30, PricePerCell: 50000, Mode: models.ModeOnline,
	})
	require.NoError(t, err)

	_, err = svc.CreateAvailabilityRule(ctx, RuleInput{
		TutorID: "t1", Weekday: time.Monday, StartMinute: 11 * 60, EndMinute: 13 * 60,
		CellMinutes: 30, PricePerCell: 50000, Mode: models.ModeOnline,
	})
	assert.True(t, utils.IsKind(err, utils.KindValidation), "overlapping rule")

	discounted := int64(40000)
	_, err = svc.SetCellOverride(ctx, "t1", rule.ID, models.CellOverride{Date: "2030-01-07", StartMinute: 9*60 + 30, Price: &discounted})
	require.NoError(t, err)
	_, err = svc.SetCellOverride(ctx, "t1", rule.ID, models.CellOverride{Date: "2030-01-07", StartMinute: 11 * 60, Blocked: true})
	require.NoError(t, err)
	_, err = svc.SetCellOverride(ctx, "t1", rule.ID, models.CellOverride{Date: "2030-01-08", StartMinute: 9 * 60, Blocked: true})
	assert.True(t, utils.IsKind(err, utils.KindValidation), "tuesday date on a monday rule")

	res, err := svc.ReserveRange(ctx, "t1", monday.Add(30*time.Minute), monday.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Len(t, res.Reservations, 2)
	assert.Equal(t, int64(90000), res.Price)

	// 09:00 is free but 09:30 is taken.
	_, err = svc.ReserveRange(ctx, "t1", monday, monday.Add(time.Hour))
	assert.True(t, utils.IsKind(err, utils.KindCapacityExceeded))

	// The failed range must not leave its free cell reserved.
	cells, err := svc.ListCells(ctx, "t1", monday, monday.Add(3*time.Hour))
	require.NoError(t, err)
	var starts []time.Time
	for _, c := range cells {
		starts = append(starts, c.Start)
	}
	assert.Equal(t, []time.Time{
		monday,
		monday.Add(90 * time.Minute),
		monday.Add(150 * time.Minute),
	}, starts)

	_, err = svc.ReserveRange(ctx, "t1", monday.Add(2*time.Hour), monday.Add(150*time.Minute))
	assert.True(t, utils.IsKind(err, utils.KindValidation), "blocked cell")

	_, err = svc.ReserveRange(ctx, "t1", monday.Add(10*time.Minute), monday.Add(40*time.Minute))
	assert.True(t, utils.IsKind(err, utils.KindValidation), "misaligned range")
}
