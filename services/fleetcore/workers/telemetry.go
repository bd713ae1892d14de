// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workers hosts the background loops: telemetry ingestion,
// periodic state persistence, and the fleet trend recorder.
package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/estimator"
	"github.com/AleutianAI/FleetCore/services/fleetcore/observability"
	"github.com/AleutianAI/FleetCore/services/fleetcore/registry"
	"github.com/AleutianAI/FleetCore/services/fleetcore/status"
	"github.com/AleutianAI/FleetCore/services/fleetcore/trend"
)

// dropRetention bounds how long a fuel-drop event stays visible to the
// action adapters.
const dropRetention = 24 * time.Hour

// dropRingCap bounds the drop ring regardless of age.
const dropRingCap = 200

// SnapshotSource yields one reconciled snapshot per truck per poll.
// *wialon.Reader satisfies it.
type SnapshotSource interface {
	ReadAllTrucks(ctx context.Context) ([]datatypes.SensorSnapshot, error)
}

// MetricsStore receives the cycle's persistent outputs. *mysql.Store
// satisfies it. A nil store runs the pipeline without persistence.
type MetricsStore interface {
	UpsertFuelMetrics(ctx context.Context, metrics []datatypes.FuelMetric) error
	UpsertRefuelEvent(ctx context.Context, ev *datatypes.RefuelEvent) error
	InsertAnomalies(ctx context.Context, anomalies []datatypes.AnomalyRecord) error
}

// MetricMirror shadows metric rows into a time-series store.
// *InfluxMirror satisfies it.
type MetricMirror interface {
	WriteMetrics(ctx context.Context, metrics []datatypes.FuelMetric) error
}

// TelemetryConfig wires the telemetry loop's collaborators.
type TelemetryConfig struct {
	Source   SnapshotSource
	Registry *registry.Registry
	Trends   *trend.Engine
	Gate     *trend.Gate
	Store    MetricsStore  // nil disables persistence
	Mirror   MetricMirror  // nil disables the time-series shadow
	Tuning   estimator.Tuning
	Interval time.Duration
	Workers  int
	Obs      *observability.PipelineMetrics // nil disables metrics
	Logger   *logging.Logger

	// OnRefuel and OnDrop observe finalized detections, called from the
	// cycle goroutine after persistence. Sensor-noise drops are not
	// reported. Optional; must not block.
	OnRefuel func(ev datatypes.RefuelEvent)
	OnDrop   func(drop estimator.FuelDrop)
}

// TelemetryLoop drives the ingestion pipeline: poll, classify, estimate,
// detect, persist.
//
// # Description
//
// Each tick runs one cycle. A tick that arrives while the previous
// cycle is still running is skipped; there is no queue and no cycle
// overlap. Per-truck estimator state is owned exclusively by this loop;
// the action adapters read through the TelemetryView methods, which
// serve copies from behind a short-hold mutex.
//
// # Thread Safety
//
// Safe for concurrent use of the view methods while the loop runs.
type TelemetryLoop struct {
	cfg    TelemetryConfig
	log    *logging.Logger
	trucks map[string]*estimator.Truck // keyed by truck_id, fixed after New

	busy atomic.Bool

	mu        sync.Mutex
	snapshots map[string]*datatypes.SensorSnapshot
	statuses  map[string]datatypes.TruckStatus
	drops     []estimator.FuelDrop
	estStates map[string]estimator.PersistedState
	lastCycle time.Time
}

// NewTelemetryLoop builds the loop with one estimator per registered
// truck.
func NewTelemetryLoop(cfg TelemetryConfig) *TelemetryLoop {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	trucks := make(map[string]*estimator.Truck)
	for _, tc := range cfg.Registry.All() {
		trucks[tc.TruckID] = estimator.NewTruck(tc, cfg.Tuning)
	}

	return &TelemetryLoop{
		cfg:       cfg,
		log:       cfg.Logger,
		trucks:    trucks,
		snapshots: make(map[string]*datatypes.SensorSnapshot),
		statuses:  make(map[string]datatypes.TruckStatus),
		estStates: make(map[string]estimator.PersistedState),
	}
}

// RestoreEstimators warm-starts the per-truck filters from persisted
// state. Stale or unknown entries are skipped with a log line.
func (l *TelemetryLoop) RestoreEstimators(states map[string]estimator.PersistedState, now time.Time) {
	restored := 0
	for truckID, st := range states {
		truck, ok := l.trucks[truckID]
		if !ok {
			l.log.Debug("Dropping persisted state for unregistered truck",
				"truck_id", truckID)
			continue
		}
		if err := truck.Restore(st, now); err != nil {
			l.log.Info("Starting truck fresh, persisted state unusable",
				"truck_id", truckID,
				"error", err)
			continue
		}
		restored++
	}
	l.log.Info("Estimator state restored",
		"restored", restored,
		"fleet", len(l.trucks))
}

// Run drives the loop until the context is cancelled.
func (l *TelemetryLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	// First cycle immediately; the dashboard should not wait a full
	// interval after startup.
	l.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.RunCycle(ctx)
		}
	}
}

// RunCycle executes one poll cycle, or skips it when the previous one
// is still running.
func (l *TelemetryLoop) RunCycle(ctx context.Context) {
	if !l.busy.CompareAndSwap(false, true) {
		l.log.Warn("Sync cycle still running, skipping tick")
		if l.cfg.Obs != nil {
			l.cfg.Obs.RecordSyncCycle("skipped", 0, 0)
		}
		return
	}
	defer l.busy.Store(false)

	started := time.Now()
	processed, err := l.cycle(ctx, started.UTC())
	elapsed := time.Since(started).Seconds()

	outcome := "success"
	if err != nil {
		outcome = "error"
		l.log.Error("Sync cycle failed",
			"error", err,
			"elapsed_seconds", elapsed)
	}
	if l.cfg.Obs != nil {
		l.cfg.Obs.RecordSyncCycle(outcome, elapsed, processed)
	}
}

// cycleOutput collects one truck's results for the serial persistence
// phase.
type cycleOutput struct {
	metric    *datatypes.FuelMetric
	refuel    *datatypes.RefuelEvent
	drop      *estimator.FuelDrop
	anomalies []datatypes.AnomalyRecord
	snapshot  *datatypes.SensorSnapshot
	status    datatypes.TruckStatus
}

func (l *TelemetryLoop) cycle(ctx context.Context, now time.Time) (int, error) {
	snapshots, err := l.cfg.Source.ReadAllTrucks(ctx)
	if err != nil {
		return 0, err
	}

	outputs := make([]cycleOutput, len(snapshots))
	seen := make(map[string]bool, len(snapshots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Workers)
	for i := range snapshots {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outputs[i] = l.processTruck(&snapshots[i], now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var (
		metrics   []datatypes.FuelMetric
		refuels   []*datatypes.RefuelEvent
		anomalies []datatypes.AnomalyRecord
		drops     []estimator.FuelDrop
	)
	for _, out := range outputs {
		if out.snapshot != nil {
			seen[out.snapshot.TruckID] = true
		}
		if out.metric != nil {
			metrics = append(metrics, *out.metric)
		}
		if out.refuel != nil {
			refuels = append(refuels, out.refuel)
		}
		if out.drop != nil {
			drops = append(drops, *out.drop)
		}
		anomalies = append(anomalies, out.anomalies...)
	}

	// Trucks that produced no snapshot may still hold a pending refuel
	// whose quiet window elapsed.
	for truckID, truck := range l.trucks {
		if seen[truckID] {
			continue
		}
		if ev := truck.Flush(now); ev != nil {
			refuels = append(refuels, ev)
		}
	}

	l.publish(outputs, drops, now)
	l.persist(ctx, metrics, refuels, anomalies)
	l.recordDetections(refuels, drops, anomalies)

	return len(snapshots), nil
}

// processTruck runs the full per-truck pipeline for one snapshot.
func (l *TelemetryLoop) processTruck(s *datatypes.SensorSnapshot, now time.Time) cycleOutput {
	out := cycleOutput{snapshot: s}

	st := status.Classify(s, now)
	out.status = st

	truck, ok := l.trucks[s.TruckID]
	if !ok {
		// The reader only emits registered trucks; a miss here means
		// the registry changed under us.
		l.log.Warn("Snapshot for unknown truck dropped",
			"truck_id", s.TruckID)
		return out
	}

	res := truck.Process(s, st, now)
	out.metric = res.Metric
	out.refuel = res.Refuel
	out.drop = res.Drop

	out.anomalies = l.observeTrends(s, res.Metric, st)
	l.confirmGates(s, res.Metric, st)

	return out
}

// observeTrends feeds the cycle's validated readings to the trend
// engine and collects the anomalies it raised.
func (l *TelemetryLoop) observeTrends(s *datatypes.SensorSnapshot, m *datatypes.FuelMetric, st datatypes.TruckStatus) []datatypes.AnomalyRecord {
	if l.cfg.Trends == nil {
		return nil
	}

	var anomalies []datatypes.AnomalyRecord
	observe := func(sensor string, v *float64) {
		if v == nil {
			return
		}
		_, a := l.cfg.Trends.Observe(s.TruckID, sensor, *v, s.Timestamp)
		anomalies = append(anomalies, a...)
	}

	observe("oil_press", s.OilPress)
	observe("cool_temp", s.CoolTemp)
	observe("oil_temp", s.OilTemp)
	observe("pwr_ext", s.PwrExt)
	observe("pwr_int", s.PwrInt)
	observe("def_level", s.DEFLevel)
	observe("fuel_lvl", s.FuelLvl)
	observe("hdop", s.HDOP)
	if m != nil && st == datatypes.StatusMoving {
		observe("mpg", m.MPG)
	}
	return anomalies
}

// Failure thresholds feeding the persistence gate. A breach this cycle
// is one confirmation; recovery clears the chain.
const (
	gateOilPressMinPSI = 25.0
	gateCoolantMaxF    = 230.0
	gateVoltageMinV    = 12.2
	gateDEFMinPct      = 10.0
	gateMPGMin         = 4.0
)

// confirmGates records breach confirmations so STOP_IMMEDIATELY
// decisions are earned over time rather than by one transient.
func (l *TelemetryLoop) confirmGates(s *datatypes.SensorSnapshot, m *datatypes.FuelMetric, st datatypes.TruckStatus) {
	if l.cfg.Gate == nil {
		return
	}

	engineOn := st == datatypes.StatusMoving || st == datatypes.StatusStopped
	judge := func(sensor string, breached bool) {
		if breached {
			l.cfg.Gate.Confirm(s.TruckID, sensor, s.Timestamp)
		} else {
			l.cfg.Gate.Clear(s.TruckID, sensor)
		}
	}

	if s.OilPress != nil && engineOn {
		judge("oil_press", *s.OilPress < gateOilPressMinPSI)
	}
	if s.CoolTemp != nil {
		judge("cool_temp", *s.CoolTemp > gateCoolantMaxF)
	}
	if s.PwrExt != nil && engineOn {
		judge("pwr_ext", *s.PwrExt < gateVoltageMinV)
	}
	if s.DEFLevel != nil {
		judge("def_level", *s.DEFLevel < gateDEFMinPct)
	}
	if m != nil && m.MPG != nil {
		judge("mpg", *m.MPG < gateMPGMin)
	}
}

// publish swaps the cycle's results into the shared views. Estimator
// state is copied out here, on the cycle's own goroutine, so the flush
// worker never touches a live Truck.
func (l *TelemetryLoop) publish(outputs []cycleOutput, drops []estimator.FuelDrop, now time.Time) {
	states := make(map[string]estimator.PersistedState, len(l.trucks))
	for truckID, truck := range l.trucks {
		if truck.Initialized() {
			states[truckID] = truck.Snapshot(now)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, out := range outputs {
		if out.snapshot == nil {
			continue
		}
		l.snapshots[out.snapshot.TruckID] = out.snapshot
		l.statuses[out.snapshot.TruckID] = out.status
	}
	l.estStates = states

	l.drops = append(l.drops, drops...)
	cutoff := now.Add(-dropRetention)
	kept := l.drops[:0]
	for _, d := range l.drops {
		if d.DetectedAt.After(cutoff) {
			kept = append(kept, d)
		}
	}
	if len(kept) > dropRingCap {
		kept = kept[len(kept)-dropRingCap:]
	}
	l.drops = kept
	l.lastCycle = now
}

// persist writes the cycle's durable outputs. Failures log and continue;
// the in-memory pipeline is the source of truth between cycles.
func (l *TelemetryLoop) persist(ctx context.Context, metrics []datatypes.FuelMetric, refuels []*datatypes.RefuelEvent, anomalies []datatypes.AnomalyRecord) {
	if l.cfg.Store != nil {
		if err := l.cfg.Store.UpsertFuelMetrics(ctx, metrics); err != nil {
			l.log.Error("Failed to persist fuel metrics",
				"rows", len(metrics),
				"error", err)
		}
		for _, ev := range refuels {
			if err := l.cfg.Store.UpsertRefuelEvent(ctx, ev); err != nil {
				l.log.Error("Failed to persist refuel event",
					"truck_id", ev.TruckID,
					"error", err)
			}
		}
		if err := l.cfg.Store.InsertAnomalies(ctx, anomalies); err != nil {
			l.log.Error("Failed to persist anomaly history",
				"rows", len(anomalies),
				"error", err)
		}
	}

	if l.cfg.Mirror != nil && len(metrics) > 0 {
		if err := l.cfg.Mirror.WriteMetrics(ctx, metrics); err != nil {
			l.log.Warn("Time-series mirror write failed",
				"rows", len(metrics),
				"error", err)
		}
	}
}

// recordDetections updates the detection counters and fires the
// detection hooks.
func (l *TelemetryLoop) recordDetections(refuels []*datatypes.RefuelEvent, drops []estimator.FuelDrop, anomalies []datatypes.AnomalyRecord) {
	if l.cfg.Obs != nil {
		for _, ev := range refuels {
			l.cfg.Obs.RefuelsDetectedTotal.WithLabelValues(string(ev.Class)).Inc()
		}
		for _, d := range drops {
			l.cfg.Obs.FuelDropsTotal.WithLabelValues(string(d.Class)).Inc()
		}
		for _, a := range anomalies {
			l.cfg.Obs.AnomaliesTotal.WithLabelValues(string(a.Type), a.Sensor).Inc()
		}
	}

	if l.cfg.OnRefuel != nil {
		for _, ev := range refuels {
			l.cfg.OnRefuel(*ev)
		}
	}
	if l.cfg.OnDrop != nil {
		for _, d := range drops {
			if d.Class != estimator.DropSensorNoise {
				l.cfg.OnDrop(d)
			}
		}
	}
}

// =============================================================================
// Views
// =============================================================================

// Snapshots returns the latest snapshot per truck. Implements the
// adapter TelemetryView.
func (l *TelemetryLoop) Snapshots() []*datatypes.SensorSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*datatypes.SensorSnapshot, 0, len(l.snapshots))
	for _, s := range l.snapshots {
		copied := *s
		out = append(out, &copied)
	}
	return out
}

// Status returns the last classified status for one truck, OFFLINE when
// the truck has not been seen.
func (l *TelemetryLoop) Status(truckID string) datatypes.TruckStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.statuses[truckID]; ok {
		return st
	}
	return datatypes.StatusOffline
}

// StatusCounts tallies the fleet's current operational states. Trucks
// that never produced a snapshot count as OFFLINE.
func (l *TelemetryLoop) StatusCounts() datatypes.StatusCounts {
	l.mu.Lock()
	defer l.mu.Unlock()

	var counts datatypes.StatusCounts
	for truckID := range l.trucks {
		if st, ok := l.statuses[truckID]; ok {
			counts.Add(st)
		} else {
			counts.Add(datatypes.StatusOffline)
		}
	}
	return counts
}

// RecentDrops returns the retained fuel-drop events, oldest first.
// Implements the adapter DropView.
func (l *TelemetryLoop) RecentDrops() []estimator.FuelDrop {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]estimator.FuelDrop, len(l.drops))
	copy(out, l.drops)
	return out
}

// LastCycle returns when the last successful cycle published.
func (l *TelemetryLoop) LastCycle() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastCycle
}

// EstimatorSnapshots returns the estimator states captured at the end
// of the last cycle, re-stamped with now for staleness accounting.
func (l *TelemetryLoop) EstimatorSnapshots(now time.Time) []estimator.PersistedState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]estimator.PersistedState, 0, len(l.estStates))
	for _, st := range l.estStates {
		st.SavedAt = now
		out = append(out, st)
	}
	return out
}
