// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the state-persistence loop: estimator snapshots to
// the embedded store, algorithm state to the embedded store plus the
// optional MySQL and Redis mirrors.
package workers

import (
	"context"
	"time"

	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/estimator"
	"github.com/AleutianAI/FleetCore/services/fleetcore/observability"
)

// redisStateTTL bounds how long mirrored algorithm state may serve a
// warm start. Past this the MySQL copy is authoritative anyway.
const redisStateTTL = 24 * time.Hour

// EstimatorSource yields persistable estimator state. *TelemetryLoop
// satisfies it.
type EstimatorSource interface {
	EstimatorSnapshots(now time.Time) []estimator.PersistedState
}

// AlgorithmSource yields persistable trend state. *trend.Engine
// satisfies it.
type AlgorithmSource interface {
	AllStates() []datatypes.AlgorithmState
}

// StateSink is the durable store for warm state. *badger.StateStore
// satisfies it.
type StateSink interface {
	SaveEstimatorStates(states []estimator.PersistedState) error
	SaveAlgorithmStates(states []datatypes.AlgorithmState) error
}

// AlgorithmMirror shadows algorithm state elsewhere: the MySQL history
// table or the Redis hot mirror.
type AlgorithmMirror interface {
	UpsertAlgorithmStates(ctx context.Context, states []datatypes.AlgorithmState) error
}

// RedisStateMirror is the hot-state shadow. *rediscache.Mirror
// satisfies it.
type RedisStateMirror interface {
	SaveAlgorithmStates(ctx context.Context, states []datatypes.AlgorithmState, ttl time.Duration) error
}

// FlusherConfig wires the state flusher's sources and sinks. Only
// Estimators, Algorithms, and Sink are required.
type FlusherConfig struct {
	Estimators EstimatorSource
	Algorithms AlgorithmSource
	Sink       StateSink
	DB         AlgorithmMirror  // nil skips the MySQL mirror
	Redis      RedisStateMirror // nil skips the Redis mirror
	Interval   time.Duration
	Obs        *observability.PipelineMetrics
	Logger     *logging.Logger
}

// StateFlusher periodically persists warm state so a restart does not
// cold-start the Kalman filters and EWMA/CUSUM chains.
type StateFlusher struct {
	cfg FlusherConfig
	log *logging.Logger
}

// NewStateFlusher builds the flusher.
func NewStateFlusher(cfg FlusherConfig) *StateFlusher {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &StateFlusher{cfg: cfg, log: cfg.Logger}
}

// Run drives the flush loop until the context is cancelled, then runs
// one final flush so shutdown never loses the last interval's state.
func (f *StateFlusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush on a fresh context; the loop's is cancelled.
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			f.FlushOnce(flushCtx, time.Now().UTC())
			cancel()
			return
		case <-ticker.C:
			f.FlushOnce(ctx, time.Now().UTC())
		}
	}
}

// FlushOnce persists one round of estimator and algorithm state.
// Mirror failures degrade; the embedded store is the one write that
// counts as the flush outcome.
func (f *StateFlusher) FlushOnce(ctx context.Context, now time.Time) {
	estStates := f.cfg.Estimators.EstimatorSnapshots(now)
	algStates := f.cfg.Algorithms.AllStates()

	ok := true
	if err := f.cfg.Sink.SaveEstimatorStates(estStates); err != nil {
		ok = false
		f.log.Error("Failed to persist estimator state",
			"trucks", len(estStates),
			"error", err)
	}
	if err := f.cfg.Sink.SaveAlgorithmStates(algStates); err != nil {
		ok = false
		f.log.Error("Failed to persist algorithm state",
			"chains", len(algStates),
			"error", err)
	}

	if f.cfg.DB != nil && len(algStates) > 0 {
		if err := f.cfg.DB.UpsertAlgorithmStates(ctx, algStates); err != nil {
			f.log.Warn("Algorithm state DB mirror failed",
				"chains", len(algStates),
				"error", err)
		}
	}
	if f.cfg.Redis != nil && len(algStates) > 0 {
		if err := f.cfg.Redis.SaveAlgorithmStates(ctx, algStates, redisStateTTL); err != nil {
			f.log.Warn("Algorithm state Redis mirror failed",
				"chains", len(algStates),
				"error", err)
		}
	}

	if f.cfg.Obs != nil {
		outcome := "success"
		if !ok {
			outcome = "error"
		}
		f.cfg.Obs.StateFlushesTotal.WithLabelValues(outcome).Inc()
	}

	f.log.Debug("State flushed",
		"estimators", len(estStates),
		"algorithm_chains", len(algStates))
}
