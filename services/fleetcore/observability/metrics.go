// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the telemetry
// pipeline and the command-center API.
//
// # Description
//
// Metrics cover the three hot paths:
//   - sync cycles (duration, trucks processed, skipped cycles)
//   - detection outputs (refuels, drops, anomalies, action items)
//   - HTTP serving (request counters, latency, cache hit ratio)
//
// Exposed via the /metrics endpoint; scrape with Prometheus.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "fleetcore"

// PipelineMetrics holds all Prometheus metrics for the service.
// Initialize once at startup via InitMetrics.
type PipelineMetrics struct {
	// SyncCyclesTotal counts sync cycles by outcome.
	// Labels: status (success, error, skipped)
	SyncCyclesTotal *prometheus.CounterVec

	// SyncDurationSeconds measures full sync-cycle duration.
	SyncDurationSeconds prometheus.Histogram

	// TrucksProcessed gauges trucks handled in the last cycle.
	TrucksProcessed prometheus.Gauge

	// RefuelsDetectedTotal counts finalized refuel events.
	// Labels: class (FULL, PARTIAL)
	RefuelsDetectedTotal *prometheus.CounterVec

	// FuelDropsTotal counts flagged fuel drops.
	// Labels: class (suspected_theft, confirmed_theft, sensor_noise)
	FuelDropsTotal *prometheus.CounterVec

	// AnomaliesTotal counts statistical anomalies by test and sensor.
	// Labels: type (ewma_deviation, cusum_shift, threshold_breach), sensor
	AnomaliesTotal *prometheus.CounterVec

	// ActionItemsGenerated gauges the item count of the last
	// aggregation, by priority band.
	// Labels: priority
	ActionItemsGenerated *prometheus.GaugeVec

	// FleetHealthScore gauges the last computed fleet health, 0-100.
	FleetHealthScore prometheus.Gauge

	// RequestsTotal counts API requests.
	// Labels: endpoint, status (2xx, 4xx, 5xx)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures API latency by endpoint.
	RequestDurationSeconds *prometheus.HistogramVec

	// CacheEventsTotal counts response-cache lookups.
	// Labels: cache (dashboard, actions), event (hit, miss, bypass)
	CacheEventsTotal *prometheus.CounterVec

	// StateFlushesTotal counts periodic state persistence runs.
	// Labels: status (success, error)
	StateFlushesTotal *prometheus.CounterVec

	// LiveFeedClients gauges connected websocket subscribers.
	LiveFeedClients prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *PipelineMetrics

// InitMetrics creates and registers all metrics on the default
// registry. Call once at startup; a second call panics on duplicate
// registration.
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		SyncCyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "sync",
				Name:      "cycles_total",
				Help:      "Sync cycles by outcome",
			},
			[]string{"status"},
		),

		SyncDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "sync",
				Name:      "duration_seconds",
				Help:      "Full sync-cycle duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		TrucksProcessed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "sync",
				Name:      "trucks_processed",
				Help:      "Trucks handled in the last sync cycle",
			},
		),

		RefuelsDetectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "detect",
				Name:      "refuels_total",
				Help:      "Finalized refuel events by class",
			},
			[]string{"class"},
		),

		FuelDropsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "detect",
				Name:      "fuel_drops_total",
				Help:      "Flagged fuel drops by classification",
			},
			[]string{"class"},
		),

		AnomaliesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "detect",
				Name:      "anomalies_total",
				Help:      "Statistical anomalies by test and sensor",
			},
			[]string{"type", "sensor"},
		),

		ActionItemsGenerated: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "aggregate",
				Name:      "action_items",
				Help:      "Action items in the last aggregation by priority",
			},
			[]string{"priority"},
		),

		FleetHealthScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "aggregate",
				Name:      "fleet_health_score",
				Help:      "Last computed fleet health score, 0-100",
			},
		),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests by endpoint and status class",
			},
			[]string{"endpoint", "status"},
		),

		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "API request latency by endpoint",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"endpoint"},
		),

		CacheEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "cache",
				Name:      "events_total",
				Help:      "Response-cache lookups by cache and event",
			},
			[]string{"cache", "event"},
		),

		StateFlushesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "state",
				Name:      "flushes_total",
				Help:      "Periodic state persistence runs by outcome",
			},
			[]string{"status"},
		),

		LiveFeedClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "live_feed_clients",
				Help:      "Connected live-feed websocket subscribers",
			},
		),
	}

	return DefaultMetrics
}

// RecordSyncCycle records one completed sync cycle.
func (m *PipelineMetrics) RecordSyncCycle(status string, seconds float64, trucks int) {
	m.SyncCyclesTotal.WithLabelValues(status).Inc()
	if status != "skipped" {
		m.SyncDurationSeconds.Observe(seconds)
		m.TrucksProcessed.Set(float64(trucks))
	}
}

// RecordCacheEvent records one response-cache lookup outcome.
func (m *PipelineMetrics) RecordCacheEvent(cache, event string) {
	m.CacheEventsTotal.WithLabelValues(cache, event).Inc()
}

// RecordRequest records one served API request.
func (m *PipelineMetrics) RecordRequest(endpoint string, statusClass string, seconds float64) {
	m.RequestsTotal.WithLabelValues(endpoint, statusClass).Inc()
	m.RequestDurationSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// StatusClass buckets an HTTP status code for the requests counter.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
