package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"tutorbook/database/memstore"
	"tutorbook/database/repository"
	"tutorbook/models"
	"tutorbook/services/escrow"
	"tutorbook/services/notification"
	"tutorbook/services/payment"
	"tutorbook/services/slots"
	"tutorbook/services/tasks"
	"tutorbook/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	checksumKey = "test-checksum-key"
	tutorID     = "tutor-1"
	learnerID   = "learner-1"
	price       = int64(200000)
)

// Monday 2030-01-07 09:00 UTC.
var sessionStart = time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	ctx      context.Context
	now      time.Time
	store    *repository.Store
	slots    *slots.DefaultSlotService
	ledger   *escrow.DefaultLedger
	provider *payment.SandboxProvider
	gateway  *payment.DefaultGateway
	events   *notification.Recorder
	svc      *DefaultBookingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memstore.NewStore()
	policy := models.DefaultPolicy()
	h := &harness{t: t, ctx: context.Background(), now: sessionStart.Add(-72 * time.Hour), store: store}
	clock := func() time.Time { return h.now }

	h.slots = slots.NewSlotService(store.Slots, store.Tx, policy, zap.NewNop())
	h.slots.Now = clock
	h.ledger = escrow.NewLedger(store.Escrow, store.Tx, policy, zap.NewNop())
	h.ledger.Now = clock
	h.provider = payment.NewSandboxProvider(checksumKey, "http://sandbox.test")
	h.provider.Now = clock
	h.gateway = payment.NewGateway(h.provider, store.Payments, &payment.MemorySeenCache{}, policy.Currency, "", "", zap.NewNop())
	h.events = &notification.Recorder{}
	h.svc = NewBookingService(store, h.slots, h.ledger, h.gateway, utils.NewLocalLocker(), tasks.NoopScheduler{}, h.events, policy, zap.NewNop())
	h.svc.Now = clock
	return h
}

func (h *harness) slot(capacity int) *models.TeachingSlot {
	h.t.Helper()
	s, err := h.slots.CreateSlot(h.ctx, slots.CreateSlotInput{
		TutorID: tutorID, Start: sessionStart, End: sessionStart.Add(time.Hour),
		Mode: models.ModeOnline, Price: price, Capacity: capacity,
	})
	require.NoError(h.t, err)
	return s
}

func (h *harness) book(s *models.TeachingSlot) *models.Booking {
	h.t.Helper()
	res, err := h.svc.CreateBooking(h.ctx, CreateBookingInput{
		LearnerID: learnerID,
		Target:    models.SlotTarget(s.ID, s.Start),
	})
	require.NoError(h.t, err)
	require.NotNil(h.t, res.Payment)
	assert.Equal(h.t, pendingEscrow, res.Booking.State())
	return res.Booking
}

func (h *harness) deliver(body []byte) *models.Booking {
	h.t.Helper()
	ev, err := h.gateway.HandleWebhook(h.ctx, body, "")
	require.NoError(h.t, err)
	b, err := h.svc.ApplyPaymentEvent(h.ctx, ev)
	require.NoError(h.t, err)
	return b
}

func (h *harness) pay(b *models.Booking, status models.ProviderStatus) *models.Booking {
	h.t.Helper()
	body, err := h.provider.Settle(b.OrderCode, status)
	require.NoError(h.t, err)
	return h.deliver(body)
}

func (h *harness) reserved(s *models.TeachingSlot) int {
	h.t.Helper()
	occ, err := h.slots.ResolveOccurrence(h.ctx, s.ID, s.Start)
	require.NoError(h.t, err)
	return occ.Reserved
}

func (h *harness) balance() *models.BalanceView {
	h.t.Helper()
	bal, err := h.ledger.GetBalance(h.ctx, tutorID)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) assertBalanced() {
	h.t.Helper()
	rep, err := h.ledger.Reconcile(h.ctx, tutorID)
	require.NoError(h.t, err)
	assert.True(h.t, rep.Balanced, "ledger unbalanced: %+v", rep)
}

func TestPaidAcceptedConfirmedBookingPaysTutor(t *testing.T) {
	h := newHarness(t)
	s := h.slot(1)
	b := h.book(s)
	assert.Equal(t, 1, h.reserved(s))

	b = h.pay(b, models.ProviderPaid)
	assert.Equal(t, pendingHeld, b.State())
	assert.NotEmpty(t, b.EscrowEntryID)
	assert.Equal(t, int64(180000), h.balance().Pending)

	b, err := h.svc.Decide(h.ctx, tutorID, b.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, acceptedHeld, b.State())
	assert.NotEmpty(t, b.RoomID)

	h.now = sessionStart.Add(50 * time.Minute)
	b, err = h.svc.ConfirmCompletion(h.ctx, learnerID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, completedReleased, b.State())
	require.NotNil(t, b.CompletedAt)

	bal := h.balance()
	assert.Equal(t, int64(180000), bal.Available)
	assert.Equal(t, int64(0), bal.Pending)
	assert.Equal(t, int64(180000), bal.TotalEarned)
	h.assertBalanced()

	assert.Equal(t, []models.EventType{
		models.EventBookingCreated,
		models.EventPaymentConfirmed,
		models.EventBookingAccepted,
		models.EventBookingCompleted,
	}, h.events.Types())

	// Confirming again changes nothing.
	again, err := h.svc.ConfirmCompletion(h.ctx, learnerID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, len(b.History), len(again.History))
	assert.Equal(t, int64(180000), h.balance().Available)
}

func TestLearnerCancelInsideWindowRefundsHalf(t *testing.T) {
	h := newHarness(t)
	s := h.slot(1)
	b := h.pay(h.book(s), models.ProviderPaid)
	b, err := h.svc.Decide(h.ctx, tutorID, b.ID, true, "")
	require.NoError(t, err)

	h.now = sessionStart.Add(-2 * time.Hour)
	b, err = h.svc.Cancel(h.ctx, Caller{ID: learnerID, Role: models.ActorLearner}, b.ID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, cancelledRefunded, b.State())
	assert.Equal(t, price/2, b.RefundAmount)
	assert.Equal(t, models.ActorLearner, b.CancelledBy)
	assert.Equal(t, 0, h.reserved(s))

	bal := h.balance()
	assert.Equal(t, int64(0), bal.Pending)
	assert.Equal(t, int64(0), bal.Available)
	h.assertBalanced()

	entry, err := h.store.Escrow.GetEntry(h.ctx, b.EscrowEntryID)
	require.NoError(t, err)
	assert.Equal(t, models.BucketRefunded, entry.Bucket)
	assert.Equal(t, price/2, entry.RefundAmount)
}

func TestTutorRejectRefundsInFull(t *testing.T) {
	h := newHarness(t)
	s := h.slot(1)
	b := h.pay(h.book(s), models.ProviderPaid)

	b, err := h.svc.Decide(h.ctx, tutorID, b.ID, false, "unavailable")
	require.NoError(t, err)
	assert.Equal(t, rejectedRefunded, b.State())
	assert.Equal(t, price, b.RefundAmount)
	assert.Equal(t, 0, h.reserved(s))
	assert.Equal(t, int64(0), h.balance().Pending)
	h.assertBalanced()
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.slot(1)
	b := h.book(s)
	body, err := h.provider.Settle(b.OrderCode, models.ProviderPaid)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, err := h.gateway.HandleWebhook(h.ctx, body, "")
			if !assert.NoError(t, err) {
				return
			}
			_, err = h.svc.ApplyPaymentEvent(h.ctx, ev)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	for range 3 {
		h.deliver(body)
	}

	got, err := h.store.Bookings.GetByID(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, pendingHeld, got.State())
	confirmed := 0
	for _, rec := range got.History {
		if rec.Event == string(EventPaymentConfirmed) {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)

	entries, err := h.ledger.ListEntries(h.ctx, tutorID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(180000), h.balance().Pending)
	h.assertBalanced()
}

func TestPreAcceptedBookingIsAcceptedOnPayment(t *testing.T) {
	h := newHarness(t)
	b := h.book(h.slot(1))

	b, err := h.svc.Decide(h.ctx, tutorID, b.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, pendingEscrow, b.State())
	assert.True(t, b.PreAccepted)

	b = h.pay(b, models.ProviderPaid)
	assert.Equal(t, acceptedHeld, b.State())
	assert.NotEmpty(t, b.RoomID)
	assert.Contains(t, h.events.Types(), models.EventBookingAccepted)
}

func TestRepeatedAcceptAfterPaymentIsNoop(t *testing.T) {
	h := newHarness(t)
	b := h.book(h.slot(1))

	b, err := h.svc.Decide(h.ctx, tutorID, b.ID, true, "")
	require.NoError(t, err)
	b = h.pay(b, models.ProviderPaid)
	require.Equal(t, acceptedHeld, b.State())

	again, err := h.svc.Decide(h.ctx, tutorID, b.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, acceptedHeld, again.State())
	assert.Equal(t, b.RoomID, again.RoomID)
	assert.Len(t, again.History, len(b.History))

	accepted := 0
	for _, typ := range h.events.Types() {
		if typ == models.EventBookingAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestUnpaidBookingExpires(t *testing.T) {
	h := newHarness(t)
	s := h.slot(1)
	b := h.book(s)

	// Before the deadline nothing happens.
	got, err := h.svc.ExpirePayment(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, pendingEscrow, got.State())

	h.now = b.PaymentDeadline.Add(time.Second)
	got, err = h.svc.ExpirePayment(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelledRefunded, got.State())
	assert.Equal(t, models.ActorSystem, got.CancelledBy)
	assert.Equal(t, 0, h.reserved(s))
	assert.Contains(t, h.provider.Cancels, b.OrderCode)

	rec, err := h.store.Payments.GetByOrderCode(h.ctx, b.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderExpired, rec.Status)

	again, err := h.svc.ExpirePayment(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, len(got.History), len(again.History))
}

func TestSweepExpiresAndReleases(t *testing.T) {
	h := newHarness(t)
	unpaid := h.book(h.slot(1))
	paid := h.pay(h.book(h.slot(1)), models.ProviderPaid)
	paid, err := h.svc.Decide(h.ctx, tutorID, paid.ID, true, "")
	require.NoError(t, err)

	h.now = sessionStart.Add(time.Hour).Add(h.svc.Policy.CompletionGrace).Add(time.Minute)
	report, err := h.svc.SweepDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Started)
	assert.Equal(t, 1, report.Released)
	assert.Equal(t, 0, report.Failed)

	got, err := h.store.Bookings.GetByID(h.ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelledRefunded, got.State())
	got, err = h.store.Bookings.GetByID(h.ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, completedReleased, got.State())
	assert.Equal(t, int64(180000), h.balance().Available)

	report, err = h.svc.SweepDue(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Expired+report.Started+report.Released)
	h.assertBalanced()
}

func TestUnacceptedBookingIsRejectedAtStart(t *testing.T) {
	h := newHarness(t)
	s := h.slot(1)
	b := h.pay(h.book(s), models.ProviderPaid)

	h.now = sessionStart.Add(time.Minute)
	b, err := h.svc.StartSession(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, rejectedRefunded, b.State())
	assert.Equal(t, price, b.RefundAmount)
	assert.Contains(t, h.events.Types(), models.EventBookingRejected)
	h.assertBalanced()
}

func TestPaymentLinkFailureReleasesCapacity(t *testing.T) {
	h := newHarness(t)
	s := h.slot(1)
	h.provider.FailLinks = true

	_, err := h.svc.CreateBooking(h.ctx, CreateBookingInput{LearnerID: learnerID, Target: models.SlotTarget(s.ID, s.Start)})
	require.Error(t, err)
	assert.Equal(t, 0, h.reserved(s))

	list, err := h.svc.List(h.ctx, Caller{ID: learnerID, Role: models.ActorLearner})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cancelledRefunded, list[0].State())
	assert.Equal(t, models.ActorSystem, list[0].CancelledBy)

	h.provider.FailLinks = false
	h.book(s)
}

func TestLatePaymentIsRecordedNotApplied(t *testing.T) {
	h := newHarness(t)
	b := h.book(h.slot(1))
	h.now = b.PaymentDeadline.Add(time.Minute)
	_, err := h.svc.ExpirePayment(h.ctx, b.ID)
	require.NoError(t, err)

	body, err := payment.SignedWebhook(checksumKey, b.OrderCode, models.ProviderPaid, price)
	require.NoError(t, err)
	got := h.deliver(body)
	assert.Equal(t, cancelledRefunded, got.State())
	assert.Empty(t, got.EscrowEntryID)

	rec, err := h.store.Payments.GetByOrderCode(h.ctx, b.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderPaid, rec.Status)
	assert.True(t, rec.Late)
	assert.Equal(t, int64(0), h.balance().Pending)
}

func TestFailedPaymentCancelsBooking(t *testing.T) {
	h := newHarness(t)
	s := h.slot(1)
	b := h.pay(h.book(s), models.ProviderCancelled)
	assert.Equal(t, cancelledRefunded, b.State())
	assert.Equal(t, models.ActorProvider, b.CancelledBy)
	assert.Equal(t, 0, h.reserved(s))
}

func TestVerifyPaymentPollsProvider(t *testing.T) {
	h := newHarness(t)
	b := h.book(h.slot(1))
	_, err := h.provider.Settle(b.OrderCode, models.ProviderPaid)
	require.NoError(t, err)

	_, err = h.svc.VerifyPayment(h.ctx, Caller{ID: "someone-else", Role: models.ActorLearner}, b.OrderCode)
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))

	got, err := h.svc.VerifyPayment(h.ctx, Caller{ID: learnerID, Role: models.ActorLearner}, b.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, pendingHeld, got.State())
}

func TestDisputeResolution(t *testing.T) {
	setup := func(t *testing.T) (*harness, *models.Booking) {
		h := newHarness(t)
		b := h.pay(h.book(h.slot(1)), models.ProviderPaid)
		b, err := h.svc.Decide(h.ctx, tutorID, b.ID, true, "")
		require.NoError(t, err)
		h.now = sessionStart.Add(2 * time.Hour)
		b, err = h.svc.Dispute(h.ctx, Caller{ID: learnerID, Role: models.ActorLearner}, b.ID, "tutor did not show")
		require.NoError(t, err)
		assert.Equal(t, disputedHeld, b.State())
		return h, b
	}

	t.Run("held while disputed", func(t *testing.T) {
		h, b := setup(t)
		h.now = sessionStart.Add(time.Hour).Add(h.svc.Policy.CompletionGrace).Add(time.Hour)
		got, err := h.svc.AutoRelease(h.ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, disputedHeld, got.State())
		assert.Equal(t, int64(180000), h.balance().Pending)
	})

	t.Run("refund", func(t *testing.T) {
		h, b := setup(t)
		got, err := h.svc.ResolveDispute(h.ctx, "op-1", b.ID, ResolveRefund, "no-show confirmed")
		require.NoError(t, err)
		assert.Equal(t, cancelledRefunded, got.State())
		assert.Equal(t, price, got.RefundAmount)
		assert.Equal(t, int64(0), h.balance().Pending)
		h.assertBalanced()
	})

	t.Run("release", func(t *testing.T) {
		h, b := setup(t)
		got, err := h.svc.ResolveDispute(h.ctx, "op-1", b.ID, ResolveRelease, "session happened")
		require.NoError(t, err)
		assert.Equal(t, completedReleased, got.State())
		assert.Equal(t, int64(180000), h.balance().Available)
		h.assertBalanced()
	})

	t.Run("opened by the tutor", func(t *testing.T) {
		h := newHarness(t)
		b := h.pay(h.book(h.slot(1)), models.ProviderPaid)
		b, err := h.svc.Decide(h.ctx, tutorID, b.ID, true, "")
		require.NoError(t, err)
		h.now = sessionStart.Add(2 * time.Hour)

		_, err = h.svc.Dispute(h.ctx, Caller{ID: "tutor-2", Role: models.ActorTutor}, b.ID, "learner no-show")
		assert.Equal(t, utils.KindNotFound, utils.KindOf(err))
		_, err = h.svc.Dispute(h.ctx, Caller{ID: "op-1", Role: models.ActorOperator}, b.ID, "learner no-show")
		assert.Equal(t, utils.KindValidation, utils.KindOf(err))

		got, err := h.svc.Dispute(h.ctx, Caller{ID: tutorID, Role: models.ActorTutor}, b.ID, "learner no-show")
		require.NoError(t, err)
		assert.Equal(t, disputedHeld, got.State())
		last := got.History[len(got.History)-1]
		assert.Equal(t, models.ActorTutor, last.Actor)
		assert.Equal(t, "learner no-show", got.DisputeReason)
		assert.Equal(t, int64(180000), h.balance().Pending)
	})

	t.Run("window closed", func(t *testing.T) {
		h := newHarness(t)
		b := h.pay(h.book(h.slot(1)), models.ProviderPaid)
		b, err := h.svc.Decide(h.ctx, tutorID, b.ID, true, "")
		require.NoError(t, err)
		h.now = sessionStart.Add(time.Hour).Add(h.svc.Policy.DisputeWindow).Add(time.Minute)
		_, err = h.svc.Dispute(h.ctx, Caller{ID: learnerID, Role: models.ActorLearner}, b.ID, "late complaint")
		assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))
	})
}

func TestRefusedActions(t *testing.T) {
	h := newHarness(t)
	b := h.book(h.slot(1))

	_, err := h.svc.ConfirmCompletion(h.ctx, learnerID, b.ID)
	assert.Error(t, err)

	_, err = h.svc.Cancel(h.ctx, Caller{ID: "learner-2", Role: models.ActorLearner}, b.ID, "")
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))

	_, err = h.svc.Decide(h.ctx, "tutor-2", b.ID, true, "")
	assert.Equal(t, utils.KindNotFound, utils.KindOf(err))

	_, err = h.svc.ResolveDispute(h.ctx, "op-1", b.ID, ResolveRelease, "")
	assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))

	_, err = h.svc.ResolveDispute(h.ctx, "op-1", b.ID, Resolution("split"), "")
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))

	b = h.pay(b, models.ProviderPaid)
	b, err = h.svc.Decide(h.ctx, tutorID, b.ID, true, "")
	require.NoError(t, err)
	h.now = sessionStart.Add(time.Minute)
	_, err = h.svc.Cancel(h.ctx, Caller{ID: learnerID, Role: models.ActorLearner}, b.ID, "too late")
	assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))

	_, err = h.svc.CreateBooking(h.ctx, CreateBookingInput{LearnerID: tutorID, Target: b.Target})
	assert.Error(t, err)
}

func TestAdHocBookingReservesCells(t *testing.T) {
	h := newHarness(t)
	_, err := h.slots.CreateAvailabilityRule(h.ctx, slots.RuleInput{
		TutorID: tutorID, Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60,
		CellMinutes: 30, PricePerCell: 50000, Mode: models.ModeOffline,
	})
	require.NoError(t, err)

	res, err := h.svc.CreateBooking(h.ctx, CreateBookingInput{
		LearnerID: learnerID,
		Target:    models.AdHocTarget(tutorID, sessionStart, sessionStart.Add(time.Hour)),
	})
	require.NoError(t, err)
	b := res.Booking
	assert.Equal(t, int64(100000), b.Price)
	assert.Equal(t, models.ModeOffline, b.Mode)
	assert.Len(t, b.Reservations, 2)

	day := sessionStart.Truncate(24 * time.Hour)
	cells, err := h.slots.ListCells(h.ctx, tutorID, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, cells, 4)

	_, err = h.svc.Cancel(h.ctx, Caller{ID: tutorID, Role: models.ActorTutor}, b.ID, "")
	require.NoError(t, err)
	cells, err = h.slots.ListCells(h.ctx, tutorID, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, cells, 6)
}
