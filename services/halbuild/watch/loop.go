// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
	"github.com/AleutianAI/halbuild/services/halbuild/syncer"
)

// Runner performs one sync run. *syncer.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, target string) (*syncer.Report, error)
}

// Status is the externally visible state of a Loop.
type Status struct {
	Running     bool          `json:"running"`
	Runs        int           `json:"runs"`
	LastRunID   string        `json:"last_run_id,omitempty"`
	LastState   syncer.State  `json:"last_state,omitempty"`
	LastChanged []string      `json:"last_changed,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	LastKind    halerr.Kind   `json:"last_error_kind,omitempty"`
	LastStarted time.Time     `json:"last_started,omitzero"`
	LastTook    time.Duration `json:"last_duration,omitempty"`

	// ReviewPending is true while the review lock is known to exist.
	ReviewPending bool `json:"review_pending"`
}

// Loop turns change batches into throttled sync runs over the whole
// catalog.
//
// # Thread Safety
//
// Handle is not reentrant and is meant to be driven by one Watcher.
// Status is safe to call concurrently.
type Loop struct {
	runner  Runner
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.RWMutex
	status Status
}

// NewLoop returns a Loop that starts at most one run per minInterval.
// A non-positive minInterval disables throttling.
func NewLoop(runner Runner, minInterval time.Duration, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Loop{
		runner:  runner,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Handle is a Handler that logs the batch and runs once.
func (l *Loop) Handle(ctx context.Context, batch []Change) {
	paths := make([]string, len(batch))
	for i, c := range batch {
		paths[i] = c.Path
	}
	l.logger.Info("interface tree changed", slog.Int("paths", len(paths)), slog.Any("changed", paths))
	_ = l.RunOnce(ctx)
}

// RunOnce waits for the rate limiter and performs one full sync.
//
// # Outputs
//
//   - error: ctx errors from waiting, or the run error. Dirty and
//     unacknowledged outcomes are logged, not treated as loop failures.
func (l *Loop) RunOnce(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.status.Running = true
	l.status.LastStarted = time.Now()
	l.mu.Unlock()

	rep, err := l.runner.Run(ctx, "")

	l.mu.Lock()
	l.status.Running = false
	l.status.Runs++
	l.status.LastError, l.status.LastKind = "", ""
	if rep != nil {
		l.status.LastRunID = rep.RunID
		l.status.LastState = rep.State
		l.status.LastChanged = rep.Changed
		l.status.LastTook = rep.Duration
	}
	if err != nil {
		l.status.LastError = err.Error()
		l.status.LastKind = halerr.KindOf(err)
	}
	switch {
	case rep != nil && rep.LockCreated:
		l.status.ReviewPending = true
	case halerr.KindOf(err) == halerr.KindUnacknowledgedLock:
		l.status.ReviewPending = true
	case err == nil:
		l.status.ReviewPending = false
	}
	l.mu.Unlock()

	switch {
	case err == nil && rep.State == syncer.StateDirty:
		l.logger.Warn("manifests regenerated, review required",
			slog.String("run_id", rep.RunID),
			slog.Any("changed", rep.Changed))
	case err == nil:
		l.logger.Info("manifests up to date", slog.String("run_id", rep.RunID))
	case halerr.KindOf(err) == halerr.KindUnacknowledgedLock:
		l.logger.Warn("review lock still present", slog.String("error", err.Error()))
	default:
		l.logger.Error("sync failed",
			slog.String("kind", string(halerr.KindOf(err))),
			slog.String("error", err.Error()))
	}
	return err
}

// Status returns a snapshot of the loop state.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.status
	s.LastChanged = append([]string(nil), s.LastChanged...)
	return s
}
