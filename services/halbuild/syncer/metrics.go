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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
	"github.com/AleutianAI/halbuild/services/halbuild/telemetry"
)

var (
	tracer = otel.Tracer("halbuild.syncer")
	meter  = otel.Meter("halbuild.syncer")
)

var (
	syncMetrics *telemetry.SyncMetrics
	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		syncMetrics, metricsErr = telemetry.NewSyncMetrics(meter)
	})
	return metricsErr
}

// recordRun records the outcome of a finished run. Metric failures never
// affect the run.
func recordRun(ctx context.Context, mode string, started time.Time, packages, changed int, err error) {
	if initMetrics() != nil {
		return
	}
	outcome := "clean"
	switch {
	case err != nil:
		outcome = "error"
		syncMetrics.ErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", string(halerr.KindOf(err)))))
	case changed > 0:
		outcome = "dirty"
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode), attribute.String("outcome", outcome))
	syncMetrics.RunsTotal.Add(ctx, 1, attrs)
	syncMetrics.RunDuration.Record(ctx, time.Since(started).Seconds(), attrs)
	syncMetrics.PackagesTotal.Add(ctx, int64(packages))
	if mode == "sync" {
		syncMetrics.ManifestsChanged.Add(ctx, int64(changed))
	}
}
