// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package modelstore

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("modelshelf.modelstore")
	meter  = otel.Meter("modelshelf.modelstore")
)

var (
	loadTotal     metric.Int64Counter
	saveTotal     metric.Int64Counter
	saveLatency   metric.Float64Histogram
	refreshTotal  metric.Int64Counter
	mutationTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		loadTotal, err = meter.Int64Counter(
			"modelstore_load_total",
			metric.WithDescription("Catalog loads by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		saveTotal, err = meter.Int64Counter(
			"modelstore_save_total",
			metric.WithDescription("Catalog file writes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		saveLatency, err = meter.Float64Histogram(
			"modelstore_save_duration_seconds",
			metric.WithDescription("Duration of locked catalog writes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		refreshTotal, err = meter.Int64Counter(
			"modelstore_refresh_total",
			metric.WithDescription("Catalog refresh notifications"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mutationTotal, err = meter.Int64Counter(
			"modelstore_mutation_total",
			metric.WithDescription("Catalog mutations by operation"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func startStoreSpan(ctx context.Context, op, modelID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Store."+op,
		trace.WithAttributes(
			attribute.String("model.id", modelID),
		),
	)
}

// load outcomes
const (
	loadOK        = "ok"
	loadInitial   = "initialized"
	loadRecovered = "recovered"
)

func recordLoad(ctx context.Context, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	loadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordSave(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	saveTotal.Add(ctx, 1, attrs)
	saveLatency.Record(ctx, duration.Seconds(), attrs)
}

func recordRefresh(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	refreshTotal.Add(ctx, 1)
}

func recordMutation(ctx context.Context, op string) {
	if err := initMetrics(); err != nil {
		return
	}
	mutationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
