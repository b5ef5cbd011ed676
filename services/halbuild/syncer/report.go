// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syncer

import (
	"time"

	"github.com/sourcegraph/go-diff/diff"
)

// State is a phase of a sync run.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateRendering   State = "rendering"
	StateWriting     State = "writing"
	StateReporting   State = "reporting"
	StateClean       State = "clean"
	StateDirty       State = "dirty"

	// StateFailed is entered from any phase when the run aborts.
	StateFailed State = "failed"
)

// ScopeAll is the Report.Scope of a run over every discovered package.
const ScopeAll = "all"

// Report is the outcome of one sync run.
type Report struct {
	// RunID identifies the run in logs and traces.
	RunID string `json:"run_id"`

	// Scope is ScopeAll or the requested package id.
	Scope string `json:"scope"`

	// Packages is the number of packages in scope.
	Packages int `json:"packages"`

	// Changed lists the manifests whose content changed, relative to the
	// project root, sorted.
	Changed []string `json:"changed"`

	// State is the final state.
	State State `json:"state"`

	// Transitions records every state entered, starting with StateIdle.
	Transitions []State `json:"transitions"`

	// LockPath is the review lock path relative to the filesystem.
	LockPath string `json:"lock_path"`

	// LockCreated is true when this run created or refreshed the review lock.
	LockCreated bool `json:"lock_created"`

	// Started and Duration time the run.
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// AnyChanged reports whether at least one manifest was written.
func (r *Report) AnyChanged() bool {
	return r != nil && len(r.Changed) > 0
}

func (r *Report) enter(s State) {
	r.State = s
	r.Transitions = append(r.Transitions, s)
}

// StaleManifest is a manifest whose rendering differs from disk.
type StaleManifest struct {
	// Path is relative to the project root.
	Path string

	// Diff turns the current file into the rendered one.
	Diff *diff.FileDiff
}

// CheckReport is the outcome of a read-only verification.
type CheckReport struct {
	RunID    string
	Scope    string
	Packages int

	// Stale is sorted by Path.
	Stale []StaleManifest

	// LockPresent reports whether the review lock exists.
	LockPresent bool
}

// UpToDate is true when nothing is stale and no review is pending.
func (r *CheckReport) UpToDate() bool {
	return len(r.Stale) == 0 && !r.LockPresent
}

// Diffs returns the diffs of all stale manifests in Path order.
func (r *CheckReport) Diffs() []*diff.FileDiff {
	out := make([]*diff.FileDiff, len(r.Stale))
	for i, s := range r.Stale {
		out[i] = s.Diff
	}
	return out
}
