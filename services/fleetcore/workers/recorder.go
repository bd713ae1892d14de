// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the trend recorder: a bounded ring of fleet-level
// samples backing GET /trends and the live websocket feed.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// Sampler produces one fleet-level sample. Wired to the aggregator's
// generation path by the service.
type Sampler func(ctx context.Context) (datatypes.TrendPoint, error)

// RecorderConfig wires the trend recorder.
type RecorderConfig struct {
	Sample   Sampler
	Interval time.Duration
	MaxRing  int // e.g. 1000

	// OnSample, when set, receives each appended point. The live feed
	// hub uses it to broadcast. Called without the ring lock held.
	OnSample func(datatypes.TrendPoint)

	Logger *logging.Logger
}

// TrendRecorder samples fleet health on a cadence and retains a
// bounded history.
//
// # Thread Safety
//
// Safe for concurrent use: the ring sits behind a mutex and readers
// get copies.
type TrendRecorder struct {
	cfg RecorderConfig
	log *logging.Logger

	mu   sync.Mutex
	ring []datatypes.TrendPoint // oldest first
}

// NewTrendRecorder builds the recorder.
func NewTrendRecorder(cfg RecorderConfig) *TrendRecorder {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.MaxRing <= 0 {
		cfg.MaxRing = 1000
	}
	return &TrendRecorder{cfg: cfg, log: cfg.Logger}
}

// Run samples on the configured cadence until the context is cancelled.
func (r *TrendRecorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RecordOnce(ctx)
		}
	}
}

// RecordOnce takes one sample and appends it. Sampling failures log
// and leave the ring untouched.
func (r *TrendRecorder) RecordOnce(ctx context.Context) {
	point, err := r.cfg.Sample(ctx)
	if err != nil {
		r.log.Warn("Trend sample failed",
			"error", err)
		return
	}
	r.Append(point)
}

// Append adds one point, evicting the oldest past MaxRing. Manual
// recordings from POST /trends/record come through here too.
func (r *TrendRecorder) Append(point datatypes.TrendPoint) {
	r.mu.Lock()
	r.ring = append(r.ring, point)
	if len(r.ring) > r.cfg.MaxRing {
		r.ring = r.ring[len(r.ring)-r.cfg.MaxRing:]
	}
	r.mu.Unlock()

	if r.cfg.OnSample != nil {
		r.cfg.OnSample(point)
	}
}

// Points returns a copy of the ring, oldest first. A non-positive
// limit returns everything; otherwise the newest limit points.
func (r *TrendRecorder) Points(limit int) []datatypes.TrendPoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	ring := r.ring
	if limit > 0 && len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	out := make([]datatypes.TrendPoint, len(ring))
	copy(out, ring)
	return out
}

// Len reports the current ring depth.
func (r *TrendRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ring)
}
