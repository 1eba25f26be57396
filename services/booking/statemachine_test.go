package booking

import (
	"testing"
	"time"

	"tutorbook/models"
	"tutorbook/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryTransitionStaysLegal(t *testing.T) {
	for _, ev := range Events() {
		for from, to := range transitions[ev] {
			assert.True(t, IsLegal(from), "%s from %s", ev, from)
			assert.True(t, IsLegal(to), "%s to %s", ev, to)
		}
	}
}

func TestIllegalMovesAreRefused(t *testing.T) {
	for _, ev := range Events() {
		for _, cur := range LegalStates {
			to, err := Next(cur, ev, false)
			if _, ok := transitions[ev][cur]; ok {
				require.NoError(t, err, "%s from %s", ev, cur)
				assert.True(t, IsLegal(to))
				continue
			}
			require.Error(t, err, "%s from %s", ev, cur)
			assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))
			var ite *utils.InvalidTransitionError
			require.ErrorAs(t, err, &ite)
			assert.Equal(t, cur.String(), ite.Current)
			assert.Equal(t, string(ev), ite.Attempted)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []models.BookingState{completedReleased, rejectedRefunded, cancelledRefunded} {
		for _, ev := range Events() {
			_, err := Next(terminal, ev, false)
			assert.Error(t, err, "%s from %s", ev, terminal)
		}
	}
}

func TestPreAcceptedPaymentSkipsPending(t *testing.T) {
	to, err := Next(pendingEscrow, EventPaymentConfirmed, true)
	require.NoError(t, err)
	assert.Equal(t, acceptedHeld, to)

	to, err = Next(pendingEscrow, EventPaymentConfirmed, false)
	require.NoError(t, err)
	assert.Equal(t, pendingHeld, to)
}

func TestRefundFor(t *testing.T) {
	p := models.DefaultPolicy()
	const gross = int64(200000)

	cases := []struct {
		name       string
		actor      models.Actor
		untilStart time.Duration
		state      models.BookingState
		want       int64
	}{
		{"unpaid", models.ActorLearner, 2 * time.Hour, pendingEscrow, 0},
		{"learner outside window", models.ActorLearner, 48 * time.Hour, acceptedHeld, gross},
		{"learner inside window", models.ActorLearner, 2 * time.Hour, acceptedHeld, gross / 2},
		{"learner at window edge", models.ActorLearner, p.CancelWindow, pendingHeld, gross / 2},
		{"tutor inside window", models.ActorTutor, time.Hour, acceptedHeld, gross},
		{"operator", models.ActorOperator, time.Minute, acceptedHeld, gross},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RefundFor(tc.actor, tc.untilStart, tc.state, gross, p)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := RefundFor(models.ActorLearner, 0, acceptedHeld, gross, p)
	assert.Equal(t, utils.KindInvalidTransition, utils.KindOf(err))

	p.PartialRefundPercent = 150
	got, err := RefundFor(models.ActorLearner, time.Hour, acceptedHeld, gross, p)
	require.NoError(t, err)
	assert.Equal(t, gross, got)
}
