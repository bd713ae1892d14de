// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregator runs the command-center generation cycle: fan out
// to the detector adapters, merge and rank their output, and assemble
// the dashboard payload with fleet health, costs, and insights.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/actions"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// defaultAdapterTimeout bounds each detector's share of a cycle so one
// slow source cannot stall the dashboard.
const defaultAdapterTimeout = 10 * time.Second

// Aggregator owns the generation cycle.
//
// # Description
//
// One Generate call collects action items from every registered
// adapter, isolates failures per adapter, deduplicates across sources,
// and derives the fleet-level rollups. The zero value is not usable;
// construct with New.
//
// # Thread Safety
//
// Generate is safe for concurrent use; it holds no mutable state
// between calls.
type Aggregator struct {
	adapters       []actions.Adapter
	totalTrucks    func() int
	version        string
	adapterTimeout time.Duration
	log            *logging.Logger
	clock          func() time.Time
}

// Option mutates construction-time settings.
type Option func(*Aggregator)

// WithAdapterTimeout overrides the per-adapter deadline.
func WithAdapterTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.adapterTimeout = d
		}
	}
}

// WithClock pins time for tests.
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) { a.clock = clock }
}

// New builds an aggregator over the given detector adapters.
// totalTrucks reports current fleet size (registry count).
func New(adapters []actions.Adapter, totalTrucks func() int, version string, log *logging.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		adapters:       adapters,
		totalTrucks:    totalTrucks,
		version:        version,
		adapterTimeout: defaultAdapterTimeout,
		log:            log,
		clock:          func() time.Time { return time.Now().UTC() },
	}
	if a.log == nil {
		a.log = logging.Default()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate runs one full cycle. statuses carries the per-status truck
// tally computed by the telemetry loop. A broken adapter degrades its
// DataQuality entry; it never aborts the cycle.
func (a *Aggregator) Generate(ctx context.Context, statuses datatypes.StatusCounts) *datatypes.DashboardResponse {
	now := a.clock()
	items, quality := a.collect(ctx)

	items = actions.Deduplicate(items)
	sortActions(items)

	var urgency datatypes.UrgencySummary
	for _, item := range items {
		urgency.Add(item.Priority)
	}

	total := a.totalTrucks()
	health := FleetHealthScore(items, total)

	resp := &datatypes.DashboardResponse{
		GeneratedAt:  now,
		Version:      a.version,
		FleetHealth:  health,
		StatusCounts: statuses,
		Urgency:      urgency,
		Cost:         ProjectCosts(items),
		Actions:      items,
		Insights:     Insights(items, total),
		DataQuality:  quality,
	}
	for _, item := range items {
		switch item.Priority {
		case datatypes.PriorityCritical:
			resp.CriticalActions = append(resp.CriticalActions, item)
		case datatypes.PriorityHigh:
			resp.HighActions = append(resp.HighActions, item)
		}
	}
	return resp
}

// collect fans out to every adapter in parallel with a per-adapter
// deadline and failure isolation.
func (a *Aggregator) collect(ctx context.Context) ([]datatypes.ActionItem, map[string]datatypes.SourceQuality) {
	var (
		mu      sync.Mutex
		items   []datatypes.ActionItem
		quality = make(map[string]datatypes.SourceQuality, len(a.adapters))
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, adapter := range a.adapters {
		g.Go(func() error {
			adapterCtx, cancel := context.WithTimeout(ctx, a.adapterTimeout)
			defer cancel()

			start := a.clock()
			got, err := adapter.Generate(adapterCtx)
			elapsed := a.clock().Sub(start)

			q := datatypes.SourceQuality{
				Available: err == nil,
				Items:     len(got),
				LatencyMS: elapsed.Milliseconds(),
			}
			if err != nil {
				q.Error = err.Error()
				a.log.Warn("adapter failed, cycle continues",
					"adapter", adapter.Name(), "error", err)
			}

			mu.Lock()
			items = append(items, got...)
			quality[adapter.Name()] = q
			mu.Unlock()
			return nil
		})
	}
	// Adapters never return errors through the group.
	_ = g.Wait()

	return items, quality
}

// sortActions orders by score descending with a stable tiebreak so
// repeated cycles render identically.
func sortActions(items []datatypes.ActionItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].PriorityScore != items[j].PriorityScore {
			return items[i].PriorityScore > items[j].PriorityScore
		}
		if items[i].TruckID != items[j].TruckID {
			return items[i].TruckID < items[j].TruckID
		}
		return items[i].NormalizedComponent < items[j].NormalizedComponent
	})
}
