package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/atelier-app/atelier/internal/lock"
)

const schedulerLockKey = "atelier:sweep"

// Scheduler runs the sweeper on a cron schedule. Firings are fire-and-forget:
// if a sweep is still running when the next one is due, the new firing is
// skipped. With a Locker configured the skip also holds across replicas.
type Scheduler struct {
	sweeper  *Sweeper
	policy   Policy
	schedule string
	locker   *lock.Locker

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	active  atomic.Bool
	logger  *slog.Logger
}

// NewScheduler wires a scheduler around sweeper. locker may be nil, in which
// case only the in-process overlap guard applies.
func NewScheduler(sweeper *Sweeper, policy Policy, schedule string, locker *lock.Locker) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		policy:   policy,
		schedule: schedule,
		locker:   locker,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "sweep.scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.policy.Validate(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("sweep scheduler started",
		"schedule", s.schedule,
		"prefix", s.policy.Prefix,
		"keep_for", s.policy.KeepFor,
	)
	return nil
}

// runSweep is a scheduled firing. Errors are logged, never propagated; a
// broken store must not take the host process down.
func (s *Scheduler) runSweep(ctx context.Context) {
	if !s.active.CompareAndSwap(false, true) {
		s.logger.Warn("previous sweep still running, skipping this firing")
		return
	}
	defer s.active.Store(false)

	if s.locker != nil {
		lease, ok, err := s.locker.TryAcquire(ctx, schedulerLockKey)
		if err != nil {
			s.logger.Error("sweep lock unavailable, sweeping anyway", "error", err)
		} else if !ok {
			s.logger.Info("sweep lock held elsewhere, skipping this firing")
			return
		} else {
			defer lease.Release(ctx)
		}
	}

	result, err := s.sweeper.Sweep(ctx, s.policy)
	if err != nil {
		s.logger.Error("scheduled sweep failed",
			"error", err,
			"scanned", result.Scanned,
			"deleted", result.Deleted,
		)
	}
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("sweep scheduler stopped")
	}
}

// NextRun reports when the next scheduled sweep fires.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
