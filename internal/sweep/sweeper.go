// Package sweep enforces the retention policy over generated artifacts:
// a sweep lists the configured namespace and deletes every object older
// than the keep duration.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atelier-app/atelier/internal/metrics"
	"github.com/atelier-app/atelier/internal/store"
)

// Policy decides which objects a sweep may delete. Immutable for the
// process lifetime except when overridden per manual trigger.
type Policy struct {
	Prefix  string        `json:"prefix"`
	KeepFor time.Duration `json:"keepFor"`
}

func (p Policy) Validate() error {
	if p.Prefix == "" {
		return errors.New("sweep policy: prefix is required")
	}
	if p.KeepFor <= 0 {
		return errors.New("sweep policy: keep duration must be positive")
	}
	return nil
}

type Failure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

type Result struct {
	Scanned  int       `json:"scanned"`
	Deleted  int       `json:"deleted"`
	Failures []Failure `json:"failures"`
}

type Sweeper struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewSweeper(st store.Store, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		store:   st,
		metrics: m,
		logger:  slog.Default().With("component", "sweep"),
		now:     time.Now,
	}
}

// Sweep deletes every object under policy.Prefix strictly older than
// policy.KeepFor. A listing failure aborts the whole sweep; a per-object
// failure is recorded and the walk continues. Safe to run concurrently
// with itself: a key deleted by a racing sweep counts as deleted here too.
// On context cancellation the partial Result collected so far is returned
// alongside ctx.Err().
func (s *Sweeper) Sweep(ctx context.Context, policy Policy) (Result, error) {
	result := Result{Failures: []Failure{}}
	if err := policy.Validate(); err != nil {
		return result, err
	}

	start := s.now()
	infos, err := s.store.List(ctx, policy.Prefix)
	if err != nil {
		s.metrics.ObserveSweep(0, 0, 0, err)
		return result, fmt.Errorf("list %q: %w", policy.Prefix, err)
	}

	var sweepErr error
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			sweepErr = err
			break
		}
		result.Scanned++
		if err := s.sweepObject(ctx, policy, info, &result); err != nil {
			result.Failures = append(result.Failures, Failure{Key: info.Key, Reason: err.Error()})
		}
	}

	s.metrics.ObserveSweep(result.Scanned, result.Deleted, len(result.Failures), sweepErr)
	s.logger.Info("sweep finished",
		"prefix", policy.Prefix,
		"keep_for", policy.KeepFor,
		"scanned", result.Scanned,
		"deleted", result.Deleted,
		"failures", len(result.Failures),
		"duration", time.Since(start),
	)
	return result, sweepErr
}

func (s *Sweeper) sweepObject(ctx context.Context, policy Policy, info store.ObjectInfo, result *Result) error {
	createdAt := info.CreatedAt
	// The listing timestamp is a hint; per-object metadata is the source
	// of truth for creation time.
	meta, err := s.store.Head(ctx, info.Key)
	switch {
	case err == nil:
		if !meta.CreatedAt.IsZero() {
			createdAt = meta.CreatedAt
		}
	case errors.Is(err, store.ErrNotFound):
		// Deleted by a concurrent sweep; goal state already reached.
		return nil
	default:
		return err
	}

	if createdAt.IsZero() {
		return errors.New("object has no creation timestamp")
	}

	age := s.now().Sub(createdAt)
	if age <= policy.KeepFor {
		return nil
	}

	if err := s.store.Delete(ctx, info.Key); err != nil {
		return err
	}
	result.Deleted++
	s.logger.Debug("expired object deleted", "key", info.Key, "age", age)
	return nil
}
