// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package downloader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "modelshelf"

const downloadSubsystem = "download"

// Metrics holds Prometheus collectors for the coordinator.
type Metrics struct {
	// AttemptsTotal counts finished attempts by outcome.
	AttemptsTotal *prometheus.CounterVec

	// BytesTotal counts bytes written by artifact kind.
	BytesTotal *prometheus.CounterVec

	// DurationSeconds observes attempt wall time by outcome.
	DurationSeconds *prometheus.HistogramVec

	// Active is the number of attempts currently running.
	Active prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: downloadSubsystem,
				Name:      "attempts_total",
				Help:      "Finished download attempts by outcome",
			},
			[]string{"outcome"},
		),
		BytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: downloadSubsystem,
				Name:      "bytes_total",
				Help:      "Bytes written to disk by artifact kind",
			},
			[]string{"artifact"},
		),
		DurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: downloadSubsystem,
				Name:      "duration_seconds",
				Help:      "Download attempt duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"outcome"},
		),
		Active: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: downloadSubsystem,
				Name:      "active",
				Help:      "Download attempts currently running",
			},
		),
	}
}
