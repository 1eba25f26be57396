package cron

import (
	"context"
	"time"

	"tutorbook/services/booking"
	"tutorbook/services/escrow"

	robfig "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = 2 * time.Minute

// Sweeper is the periodic safety net behind the delayed task queue. It
// fires every overdue lifecycle timer and reconciles every tutor balance
// once an hour.
type Sweeper struct {
	Bookings booking.BookingService
	Ledger   escrow.Ledger
	Logger   *zap.Logger
	cron     *robfig.Cron
}

func NewSweeper(bookings booking.BookingService, ledger escrow.Ledger, logger *zap.Logger) *Sweeper {
	return &Sweeper{Bookings: bookings, Ledger: ledger, Logger: logger}
}

// Start schedules the sweep on schedule (standard cron or "@every 1m") and the
// hourly reconciliation.
func (s *Sweeper) Start(schedule string) error {
	c := robfig.New(robfig.WithChain(robfig.SkipIfStillRunning(robfig.DiscardLogger)))
	if _, err := c.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}
	if _, err := c.AddFunc("@hourly", s.Reconcile); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.Logger.Info("sweeper scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running job to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.Bookings.SweepDue(ctx); err != nil {
		s.Logger.Error("lifecycle sweep failed", zap.Error(err))
	}
}

func (s *Sweeper) Reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	reports, err := s.Ledger.ReconcileAll(ctx)
	if err != nil {
		s.Logger.Error("reconciliation failed", zap.Error(err))
		return
	}
	unbalanced := 0
	for _, r := range reports {
		if !r.Balanced {
			unbalanced++
		}
	}
	s.Logger.Info("reconciliation done", zap.Int("tutors", len(reports)), zap.Int("unbalanced", unbalanced))
}
