// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/learnhub/learnhub/pkg/logger"
	"github.com/learnhub/learnhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP STALE STREAKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// StaleStreakResetter zeroes streaks not extended since before a given day.
// progression.StreakRepository implements it.
type StaleStreakResetter interface {
	ResetStale(ctx context.Context, before time.Time) (int64, error)
}

// SweepStreaksStats describes the last run.
type SweepStreaksStats struct {
	Before time.Time
	Reset  int64
}

// SweepStreaksJob zeroes current streaks of users who missed yesterday, so
// stored rows match what a progress read derives. Users active yesterday or
// today are untouched.
type SweepStreaksJob struct {
	streaks StaleStreakResetter
	now     func() time.Time
	log     *logger.Logger

	lastRun atomic.Pointer[SweepStreaksStats]
}

// NewSweepStreaksJob creates the job.
func NewSweepStreaksJob(streaks StaleStreakResetter, log *logger.Logger) *SweepStreaksJob {
	if log == nil {
		log = logger.Nop()
	}
	return &SweepStreaksJob{streaks: streaks, now: timeutil.Now, log: log}
}

// Name implements scheduler.Job.
func (j *SweepStreaksJob) Name() string { return "sweep_stale_streaks" }

// Description implements scheduler.Job.
func (j *SweepStreaksJob) Description() string {
	return "Reset current streaks whose last active day is before yesterday (UTC)"
}

// Run implements scheduler.Job.
func (j *SweepStreaksJob) Run(ctx context.Context) error {
	yesterday := timeutil.StartOfDay(j.now()).AddDate(0, 0, -1)

	n, err := j.streaks.ResetStale(ctx, yesterday)
	if err != nil {
		return fmt.Errorf("sweep_stale_streaks: %w", err)
	}

	j.lastRun.Store(&SweepStreaksStats{Before: yesterday, Reset: n})
	j.log.Info("stale streaks reset",
		logger.Int64("reset", n),
		logger.String("before", timeutil.FormatDate(yesterday)),
	)
	return nil
}

// LastRun returns the stats of the most recent successful run, or nil.
func (j *SweepStreaksJob) LastRun() *SweepStreaksStats {
	return j.lastRun.Load()
}
