// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the detector adapters. Each one turns a data
// surface (live snapshots, trend states, DTC strings, fuel events) into
// raw action items for the aggregator to merge.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/estimator"
	"github.com/AleutianAI/FleetCore/services/fleetcore/risk"
)

// Adapter is one detection source. Generate must be safe to call
// concurrently with telemetry updates; adapter failures are isolated by
// the aggregator, never fatal to a cycle.
type Adapter interface {
	Name() string
	Generate(ctx context.Context) ([]datatypes.ActionItem, error)
}

// TelemetryView exposes the latest per-truck readings without handing
// out the telemetry loop's internals.
type TelemetryView interface {
	Snapshots() []*datatypes.SensorSnapshot
	Status(truckID string) datatypes.TruckStatus
}

// TrendView exposes the per-(truck, sensor) statistical state.
type TrendView interface {
	AllStates() []datatypes.AlgorithmState
}

// PersistenceChecker reports whether the temporal gate confirmed a
// sensor condition. *trend.Gate satisfies it.
type PersistenceChecker interface {
	Met(truckID, sensor string, now time.Time) bool
}

// DropView exposes recent abnormal fuel drops from the estimators.
type DropView interface {
	RecentDrops() []estimator.FuelDrop
}

// clock lets tests pin time; nil means wall clock.
type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// ============================================================
// Real-Time Predictive
// ============================================================

// realTimeSensors are the channels worth an immediate detection pass
// each cycle, mapped to their snapshot accessor.
var realTimeSensors = []struct {
	name  string
	value func(*datatypes.SensorSnapshot) *float64
}{
	{"oil_press", func(s *datatypes.SensorSnapshot) *float64 { return s.OilPress }},
	{"cool_temp", func(s *datatypes.SensorSnapshot) *float64 { return s.CoolTemp }},
	{"oil_temp", func(s *datatypes.SensorSnapshot) *float64 { return s.OilTemp }},
	{"pwr_ext", func(s *datatypes.SensorSnapshot) *float64 { return s.PwrExt }},
}

// RealTimeAdapter runs the single-reading detector over the latest
// snapshot of every truck, using the trend engine's baseline and the
// persistence gate.
type RealTimeAdapter struct {
	View   TelemetryView
	Trends TrendView
	Gate   PersistenceChecker
	Ranges datatypes.RangeSet
	Clock  clock
}

func (a *RealTimeAdapter) Name() string { return SourceRealTimePredictive }

func (a *RealTimeAdapter) Generate(ctx context.Context) ([]datatypes.ActionItem, error) {
	now := a.Clock.now()
	baselines := baselineIndex(a.Trends.AllStates())

	var out []datatypes.ActionItem
	for _, snap := range a.View.Snapshots() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, sensor := range realTimeSensors {
			v := sensor.value(snap)
			if v == nil {
				continue
			}
			in := DetectInput{
				TruckID:      snap.TruckID,
				SensorName:   sensor.name,
				CurrentValue: *v,
				Ranges:       a.Ranges,
				Now:          now,
			}
			if base, ok := baselines[baselineKey{snap.TruckID, sensor.name}]; ok {
				in.BaselineValue = datatypes.Float(base)
			}
			if a.Gate != nil {
				in.PersistenceMet = a.Gate.Met(snap.TruckID, sensor.name, now)
			}
			if item := DetectAction(in); item != nil && item.Priority.Rank() >= datatypes.PriorityMedium.Rank() {
				out = append(out, *item)
			}
		}
	}
	return out, nil
}

type baselineKey struct{ truckID, sensor string }

// baselineIndex keeps only baselines with enough samples to be worth
// comparing against.
func baselineIndex(states []datatypes.AlgorithmState) map[baselineKey]float64 {
	idx := make(map[baselineKey]float64, len(states))
	for _, st := range states {
		if st.SampleCount >= 5 {
			idx[baselineKey{st.TruckID, st.Sensor}] = st.BaselineMean
		}
	}
	return idx
}

// ============================================================
// Predictive Maintenance
// ============================================================

// failureLimit describes where a sensor's drift becomes a failure.
type failureLimit struct {
	limit     float64
	direction datatypes.TrendDirection // the degrading direction
	component string
	unit      string
}

var failureLimits = map[string]failureLimit{
	"oil_press": {limit: 25, direction: datatypes.TrendDown, component: CompOil, unit: "psi"},
	"cool_temp": {limit: 230, direction: datatypes.TrendUp, component: CompCooling, unit: "°F"},
	"trams_t":   {limit: 250, direction: datatypes.TrendUp, component: CompTransmission, unit: "°F"},
	"pwr_ext":   {limit: 11.8, direction: datatypes.TrendDown, component: CompElectrical, unit: "V"},
	"def_level": {limit: 10, direction: datatypes.TrendDown, component: CompDEF, unit: "%"},
	"mpg":       {limit: 4.0, direction: datatypes.TrendDown, component: CompEfficiency, unit: "mpg"},
}

// maintenanceHorizonDays drops projections too far out to act on.
const maintenanceHorizonDays = 60.0

// MaintenanceAdapter projects degrading trend slopes forward to their
// failure limits and raises items for everything inside the planning
// horizon.
type MaintenanceAdapter struct {
	Trends TrendView
	Clock  clock
}

func (a *MaintenanceAdapter) Name() string { return SourcePredictiveMaintenance }

func (a *MaintenanceAdapter) Generate(ctx context.Context) ([]datatypes.ActionItem, error) {
	now := a.Clock.now()

	var out []datatypes.ActionItem
	for _, st := range a.Trends.AllStates() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		fl, ok := failureLimits[st.Sensor]
		if !ok || st.SampleCount < 5 || st.TrendDirection != fl.direction {
			continue
		}
		days, ok := projectDays(st.EWMAValue, st.TrendSlope, fl)
		if !ok || days > maintenanceHorizonDays {
			continue
		}

		score, priority := ComputeScore(ScoreInputs{
			DaysToCritical: datatypes.Float(days),
			Component:      fl.component,
		})
		if priority == datatypes.PriorityNone {
			continue
		}
		// Trend projections are never instant-stop evidence on their own.
		actionType := SelectActionType(priority, datatypes.Float(days), false)

		out = append(out, datatypes.ActionItem{
			ID:                  uuid.NewString(),
			TruckID:             st.TruckID,
			Priority:            priority,
			PriorityScore:       score,
			Category:            datatypes.CategoryMaintenance,
			Component:           st.Sensor,
			NormalizedComponent: fl.component,
			Title:               fmt.Sprintf("%s trending toward failure on %s", st.Sensor, st.TruckID),
			Description: fmt.Sprintf("%s at %.1f %s, drifting %.2f %s/day toward the %.0f %s limit",
				st.Sensor, st.EWMAValue, fl.unit, st.TrendSlope, fl.unit, fl.limit, fl.unit),
			DaysToCritical: datatypes.Float(days),
			CurrentValue:   fmt.Sprintf("%.1f %s", st.EWMAValue, fl.unit),
			Trend:          st.TrendDirection,
			Threshold:      fmt.Sprintf("%.0f %s", fl.limit, fl.unit),
			Confidence:     datatypes.ConfidenceMedium,
			ActionType:     actionType,
			ActionSteps:    Steps(fl.component, priority, actionType),
			Icon:           Icon(datatypes.CategoryMaintenance, fl.component),
			Sources:        []string{SourcePredictiveMaintenance},
			CreatedAt:      now,
		})
	}
	return out, nil
}

// projectDays returns how many days until the value crosses the limit
// at the current slope. ok is false when the slope points away from the
// limit or is effectively flat.
func projectDays(value, slopePerDay float64, fl failureLimit) (float64, bool) {
	const minSlope = 1e-6
	switch fl.direction {
	case datatypes.TrendDown:
		if slopePerDay >= -minSlope {
			return 0, false
		}
		if value <= fl.limit {
			return 0, true
		}
		return (value - fl.limit) / -slopePerDay, true
	case datatypes.TrendUp:
		if slopePerDay <= minSlope {
			return 0, false
		}
		if value >= fl.limit {
			return 0, true
		}
		return (fl.limit - value) / slopePerDay, true
	default:
		return 0, false
	}
}

// ============================================================
// Sensor Health (plus the voltage and GPS channels it owns)
// ============================================================

// SensorHealthAdapter raises items for instantaneous threshold breaches
// on the latest snapshots: oil pressure, coolant, DEF, battery voltage,
// and GPS quality.
type SensorHealthAdapter struct {
	View  TelemetryView
	Clock clock
}

func (a *SensorHealthAdapter) Name() string { return SourceSensorHealth }

func (a *SensorHealthAdapter) Generate(ctx context.Context) ([]datatypes.ActionItem, error) {
	now := a.Clock.now()

	var out []datatypes.ActionItem
	for _, snap := range a.View.Snapshots() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		status := a.View.Status(snap.TruckID)
		engineOn := status == datatypes.StatusMoving || status == datatypes.StatusStopped

		if engineOn && snap.OilPress != nil && *snap.OilPress < 25 {
			out = append(out, healthItem(snap.TruckID, now, SourceSensorHealth,
				datatypes.CategoryMaintenance, "oil_press",
				fmt.Sprintf("Oil pressure %.0f psi with engine running", *snap.OilPress),
				fmt.Sprintf("%.0f psi", *snap.OilPress), "25 psi",
				datatypes.Float(1), datatypes.Float(0.95)))
		}
		if snap.CoolTemp != nil && *snap.CoolTemp > 230 {
			out = append(out, healthItem(snap.TruckID, now, SourceSensorHealth,
				datatypes.CategoryMaintenance, "cool_temp",
				fmt.Sprintf("Coolant at %.0f°F, overheating", *snap.CoolTemp),
				fmt.Sprintf("%.0f°F", *snap.CoolTemp), "230°F",
				datatypes.Float(1), datatypes.Float(0.9)))
		}
		if snap.DEFLevel != nil && *snap.DEFLevel < 10 {
			out = append(out, healthItem(snap.TruckID, now, SourceSensorHealth,
				datatypes.CategoryCompliance, "def_level",
				fmt.Sprintf("DEF level %.0f%%, derate approaching", *snap.DEFLevel),
				fmt.Sprintf("%.0f%%", *snap.DEFLevel), "10%",
				datatypes.Float(3), datatypes.Float(0.7)))
		}
		if engineOn && snap.PwrExt != nil && *snap.PwrExt < 12.2 {
			out = append(out, healthItem(snap.TruckID, now, SourceVoltageMonitor,
				datatypes.CategoryMaintenance, "pwr_ext",
				fmt.Sprintf("Charging voltage %.1f V with engine running", *snap.PwrExt),
				fmt.Sprintf("%.1f V", *snap.PwrExt), "12.2 V",
				datatypes.Float(5), datatypes.Float(0.6)))
		}
		if bad, detail := gpsDegraded(snap); bad {
			out = append(out, healthItem(snap.TruckID, now, SourceGPSQuality,
				datatypes.CategoryEquipment, "gps",
				detail, detail, "4 sats / HDOP 5",
				nil, datatypes.Float(0.4)))
		}
	}
	return out, nil
}

func gpsDegraded(snap *datatypes.SensorSnapshot) (bool, string) {
	if snap.Sats != nil && *snap.Sats < 4 {
		return true, fmt.Sprintf("GPS tracking %.0f satellites", *snap.Sats)
	}
	if snap.HDOP != nil && *snap.HDOP > 5 {
		return true, fmt.Sprintf("GPS HDOP %.1f, position unreliable", *snap.HDOP)
	}
	return false, ""
}

func healthItem(truckID string, now time.Time, source string, category datatypes.Category,
	sensor, description, currentValue, threshold string, days, anomaly *float64) datatypes.ActionItem {

	score, priority := ComputeScore(ScoreInputs{
		DaysToCritical: days,
		AnomalyScore:   anomaly,
		Component:      sensor,
	})
	// Snapshot breaches are single readings; the gate is checked later
	// by the real-time path, so health items never command a stop.
	actionType := SelectActionType(priority, days, false)

	return datatypes.ActionItem{
		ID:                  uuid.NewString(),
		TruckID:             truckID,
		Priority:            priority,
		PriorityScore:       score,
		Category:            category,
		Component:           sensor,
		NormalizedComponent: Normalize(sensor),
		Title:               fmt.Sprintf("%s threshold breach on %s", sensor, truckID),
		Description:         description,
		DaysToCritical:      days,
		CurrentValue:        currentValue,
		Threshold:           threshold,
		Confidence:          datatypes.ConfidenceMedium,
		ActionType:          actionType,
		ActionSteps:         Steps(sensor, priority, actionType),
		Icon:                Icon(category, sensor),
		Sources:             []string{source},
		CreatedAt:           now,
	}
}

// ============================================================
// DTC Events
// ============================================================

// DTCAdapter decodes the raw diagnostic trouble codes carried on the
// latest snapshots.
type DTCAdapter struct {
	View  TelemetryView
	Clock clock
}

func (a *DTCAdapter) Name() string { return SourceDTCEvents }

func (a *DTCAdapter) Generate(ctx context.Context) ([]datatypes.ActionItem, error) {
	now := a.Clock.now()

	var out []datatypes.ActionItem
	for _, snap := range a.View.Snapshots() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, code := range risk.ParseDTCString(snap.DTC) {
			component := code.Def.Component
			if component == "" {
				component = CompDTC
			}

			var days, anomaly *float64
			if code.Critical {
				days = datatypes.Float(2)
				anomaly = datatypes.Float(0.85)
			} else {
				anomaly = datatypes.Float(0.5)
			}
			score, priority := ComputeScore(ScoreInputs{
				DaysToCritical: days,
				AnomalyScore:   anomaly,
				Component:      component,
			})
			if priority == datatypes.PriorityNone {
				continue
			}
			actionType := SelectActionType(priority, days, false)

			title := fmt.Sprintf("DTC SPN %d FMI %d on %s", code.SPN, code.FMI, snap.TruckID)
			description := fmt.Sprintf("Active trouble code SPN %d FMI %d", code.SPN, code.FMI)
			if code.Known {
				description = fmt.Sprintf("Active trouble code: %s (SPN %d FMI %d)",
					code.Def.Name, code.SPN, code.FMI)
			}

			out = append(out, datatypes.ActionItem{
				ID:                  uuid.NewString(),
				TruckID:             snap.TruckID,
				Priority:            priority,
				PriorityScore:       score,
				Category:            datatypes.CategoryMaintenance,
				Component:           component,
				NormalizedComponent: Normalize(component),
				Title:               title,
				Description:         description,
				DaysToCritical:      days,
				CurrentValue:        fmt.Sprintf("SPN %d.%d", code.SPN, code.FMI),
				Confidence:          datatypes.ConfidenceHigh,
				ActionType:          actionType,
				ActionSteps:         Steps(component, priority, actionType),
				Icon:                Icon(datatypes.CategoryMaintenance, CompDTC),
				Sources:             []string{SourceDTCEvents},
				CreatedAt:           now,
			})
		}
	}
	return out, nil
}

// ============================================================
// Fuel Events
// ============================================================

// FuelEventsAdapter raises items for confirmed and suspected fuel
// drops. Recovered sensor noise never reaches this surface.
type FuelEventsAdapter struct {
	Drops DropView
	Clock clock
}

func (a *FuelEventsAdapter) Name() string { return SourceDBAlerts }

func (a *FuelEventsAdapter) Generate(ctx context.Context) ([]datatypes.ActionItem, error) {
	now := a.Clock.now()

	var out []datatypes.ActionItem
	for _, drop := range a.Drops.RecentDrops() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if drop.Class == estimator.DropSensorNoise {
			continue
		}

		lost := drop.FromPct - drop.ToPct
		anomaly := datatypes.Float(0.7)
		priority := datatypes.PriorityMedium
		title := fmt.Sprintf("Suspected fuel loss on %s", drop.TruckID)
		if drop.Class == estimator.DropConfirmedTheft {
			anomaly = datatypes.Float(1.0)
			priority = datatypes.PriorityHigh
			title = fmt.Sprintf("Probable fuel theft on %s", drop.TruckID)
		}
		score, _ := ComputeScore(ScoreInputs{
			AnomalyScore: anomaly,
			Component:    CompFuel,
		})
		actionType := SelectActionType(priority, nil, false)

		out = append(out, datatypes.ActionItem{
			ID:                  uuid.NewString(),
			TruckID:             drop.TruckID,
			Priority:            priority,
			PriorityScore:       score,
			Category:            datatypes.CategoryFuel,
			Component:           CompFuel,
			NormalizedComponent: CompFuel,
			Title:               title,
			Description: fmt.Sprintf("Fuel level fell %.1f%% (%.0f%% to %.0f%%) while stopped",
				lost, drop.FromPct, drop.ToPct),
			CurrentValue: fmt.Sprintf("%.0f%%", drop.ToPct),
			Confidence:   datatypes.ConfidenceMedium,
			ActionType:   actionType,
			ActionSteps: []string{
				"Review the stop location and duration on the tracking map",
				"Compare against fueling receipts for the period",
				"Inspect the tank cap and anti-siphon device",
			},
			Icon:      Icon(datatypes.CategoryFuel, CompFuel),
			Sources:   []string{SourceDBAlerts},
			CreatedAt: now,
		})
	}
	return out, nil
}

// ============================================================
// Idle Analysis
// ============================================================

// idleFractionThreshold flags trucks burning an outsized share of fuel
// at idle, from the cumulative ECU counters.
const idleFractionThreshold = 0.30

// IdleAnalysisAdapter compares cumulative idle fuel against total fuel
// burned per truck.
type IdleAnalysisAdapter struct {
	View  TelemetryView
	Clock clock
}

func (a *IdleAnalysisAdapter) Name() string { return SourceIdleAnalysis }

func (a *IdleAnalysisAdapter) Generate(ctx context.Context) ([]datatypes.ActionItem, error) {
	now := a.Clock.now()

	var out []datatypes.ActionItem
	for _, snap := range a.View.Snapshots() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if snap.TotalFuelUsed == nil || snap.TotalIdleFuel == nil || *snap.TotalFuelUsed < 100 {
			continue
		}
		frac := *snap.TotalIdleFuel / *snap.TotalFuelUsed
		if frac < idleFractionThreshold {
			continue
		}

		score, priority := ComputeScore(ScoreInputs{
			AnomalyScore: datatypes.Float(frac),
			Component:    CompEfficiency,
		})
		if priority == datatypes.PriorityNone {
			continue
		}
		actionType := SelectActionType(priority, nil, false)

		out = append(out, datatypes.ActionItem{
			ID:                  uuid.NewString(),
			TruckID:             snap.TruckID,
			Priority:            priority,
			PriorityScore:       score,
			Category:            datatypes.CategoryEfficiency,
			Component:           "idle",
			NormalizedComponent: CompEfficiency,
			Title:               fmt.Sprintf("High idle fuel share on %s", snap.TruckID),
			Description: fmt.Sprintf("%.0f%% of lifetime fuel burned at idle (%.0f of %.0f gal)",
				frac*100, *snap.TotalIdleFuel, *snap.TotalFuelUsed),
			CurrentValue: fmt.Sprintf("%.0f%%", frac*100),
			Threshold:    "30%",
			Confidence:   datatypes.ConfidenceMedium,
			ActionType:   actionType,
			ActionSteps:  Steps(CompEfficiency, priority, actionType),
			Icon:         Icon(datatypes.CategoryEfficiency, CompEfficiency),
			Sources:      []string{SourceIdleAnalysis},
			CreatedAt:    now,
		})
	}
	return out, nil
}
