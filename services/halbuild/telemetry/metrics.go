// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics are the instruments recorded by a sync run. All names use the
// "halbuild_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type SyncMetrics struct {
	// RunsTotal counts runs by outcome (clean, dirty, error) and mode.
	RunsTotal metric.Int64Counter

	// RunDuration records wall time per run in seconds.
	RunDuration metric.Float64Histogram

	// PackagesTotal counts packages rendered.
	PackagesTotal metric.Int64Counter

	// ManifestsChanged counts manifests written with new content.
	ManifestsChanged metric.Int64Counter

	// ErrorsTotal counts failed runs by error kind.
	ErrorsTotal metric.Int64Counter
}

// NewSyncMetrics registers the sync instruments with meter.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	var err error

	m.RunsTotal, err = meter.Int64Counter(
		"halbuild_runs_total",
		metric.WithDescription("Total sync runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs_total: %w", err)
	}

	m.RunDuration, err = meter.Float64Histogram(
		"halbuild_run_duration_seconds",
		metric.WithDescription("Sync run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create run_duration: %w", err)
	}

	m.PackagesTotal, err = meter.Int64Counter(
		"halbuild_packages_rendered_total",
		metric.WithDescription("Total packages rendered"),
		metric.WithUnit("{package}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create packages_rendered_total: %w", err)
	}

	m.ManifestsChanged, err = meter.Int64Counter(
		"halbuild_manifests_changed_total",
		metric.WithDescription("Total manifests written with new content"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create manifests_changed_total: %w", err)
	}

	m.ErrorsTotal, err = meter.Int64Counter(
		"halbuild_errors_total",
		metric.WithDescription("Total failed runs by error kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}
