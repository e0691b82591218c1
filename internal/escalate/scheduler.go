// Package escalate runs the periodic sweep over the assignment ledger:
// reminders for unanswered assignments, expiry and reassignment past the
// longer deadline, and retries for notifications that never went out. All
// deadline state lives in the ledger, so the sweep survives restarts and can
// run from several instances at once.
package escalate

import (
	"context"
	"log/slog"
	"time"

	"github.com/renomarket/dispatch-be/internal/dispatch"
)

// Config holds escalation scheduler configuration.
type Config struct {
	// SweepInterval is how often the sweep runs.
	SweepInterval time.Duration

	// ReminderAfter is how long an assignment may wait for a response before
	// the reminder goes out.
	ReminderAfter time.Duration

	// ExpireAfter is how long before an unanswered assignment is expired and
	// its work item released. Must be longer than ReminderAfter.
	ExpireAfter time.Duration

	// RetryAfter is how long a PENDING assignment waits before its failed
	// notification send is retried.
	RetryAfter time.Duration
}

// Scheduler drives time-based escalation using the same transition rules as
// the webhook path. It holds no in-memory deadline state: every sweep is a
// fresh query over persisted timestamps.
type Scheduler struct {
	config *Config
	engine *dispatch.Engine
	ledger dispatch.Ledger
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler creates an escalation scheduler.
func NewScheduler(config *Config, engine *dispatch.Engine, ledger dispatch.Ledger, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		config: config,
		engine: engine,
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}
}

// Run executes the sweep on the configured interval until the context is
// canceled. Individual sweep failures are logged, never fatal: the next tick
// retries everything that is still due.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Escalation scheduler started",
		slog.Duration("sweep_interval", s.config.SweepInterval),
		slog.Duration("reminder_after", s.config.ReminderAfter),
		slog.Duration("expire_after", s.config.ExpireAfter),
	)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Escalation scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			stats := s.Sweep(ctx)
			if !stats.Empty() {
				s.logger.Info("Escalation sweep finished",
					slog.Int("reminders", stats.Reminders),
					slog.Int("expired", stats.Expired),
					slog.Int("retried", stats.Retried),
					slog.Int64("dedupe_purged", stats.DedupePurged),
				)
			}
		}
	}
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Reminders    int
	Expired      int
	Retried      int
	DedupePurged int64
}

// Empty reports whether the sweep did nothing.
func (st SweepStats) Empty() bool {
	return st.Reminders == 0 && st.Expired == 0 && st.Retried == 0 && st.DedupePurged == 0
}

// Sweep runs one escalation pass. Expiry runs before reminders so an
// assignment past both deadlines is expired, not reminded. Each step claims
// its rows through conditional updates, which keeps overlapping sweeps from
// double-sending.
func (s *Scheduler) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	now := s.now()

	overdue, err := s.ledger.OverdueForExpiry(ctx, now.Add(-s.config.ExpireAfter))
	if err != nil {
		s.logger.Error("Expiry query failed", slog.Any("error", err))
	} else {
		for i := range overdue {
			// Count only the claims this sweep actually won, so the stats
			// line matches what went out.
			if s.engine.Expire(ctx, &overdue[i]) {
				stats.Expired++
			}
		}
	}

	claimed, err := s.ledger.ClaimReminders(ctx, now.Add(-s.config.ReminderAfter))
	if err != nil {
		s.logger.Error("Reminder claim failed", slog.Any("error", err))
	} else {
		for i := range claimed {
			s.engine.SendReminder(ctx, &claimed[i])
			stats.Reminders++
		}
	}

	stale, err := s.ledger.StalePending(ctx, now.Add(-s.config.RetryAfter))
	if err != nil {
		s.logger.Error("Stale pending query failed", slog.Any("error", err))
	} else {
		for i := range stale {
			s.engine.RetryNotify(ctx, &stale[i])
			stats.Retried++
		}
	}

	purged, err := s.ledger.PurgeDedupeLog(ctx, now)
	if err != nil {
		s.logger.Error("Dedupe purge failed", slog.Any("error", err))
	} else {
		stats.DedupePurged = purged
	}

	return stats
}
