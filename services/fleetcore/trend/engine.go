// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trend keeps per-(truck, sensor) statistical state: a bounded
// ring of validated readings, an EWMA chain, a two-sided CUSUM, and the
// temporal persistence gate that keeps one noisy reading from stopping
// a truck.
package trend

import (
	"math"
	"sync"
	"time"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// ringDepth is the per-sensor retention of recent readings.
const ringDepth = 10

// minSamplesForAnomaly: the baseline needs this many observations
// before deviation alerts mean anything.
const minSamplesForAnomaly = 5

// ewmaZAlert is the z-score past which an EWMA deviation is an anomaly.
const ewmaZAlert = 3.0

// slopeStableBand: EWMA slope magnitudes below this (units/day) count
// as STABLE.
const slopeStableBand = 0.05

// key identifies one (truck, sensor) chain.
type key struct {
	truck  string
	sensor string
}

// sensorState is the full mutable state of one chain.
type sensorState struct {
	ring []datatypes.SensorReading // newest last, capped at ringDepth

	ewma        float64
	ewmaVar     float64
	prevEWMA    float64
	prevEWMAAt  time.Time
	cusumHigh   float64
	cusumLow    float64
	baselineSum float64
	baselineSq  float64
	samples     int64
	direction   datatypes.TrendDirection
	slope       float64 // units per day
	updatedAt   time.Time
}

// Engine is the fleet-wide trend tracker.
//
// # Thread Safety
//
// Safe for concurrent use. The mutex is held only for the duration of a
// single map update; readers get snapshot copies.
type Engine struct {
	alpha     float64
	threshold float64
	ranges    datatypes.RangeSet

	mu     sync.Mutex
	states map[key]*sensorState
}

// NewEngine builds a tracker with the given EWMA smoothing factor and
// CUSUM alert threshold. Nil ranges use the baked-in table.
func NewEngine(alpha, cusumThreshold float64, ranges datatypes.RangeSet) *Engine {
	if ranges == nil {
		ranges = datatypes.DefaultRanges()
	}
	return &Engine{
		alpha:     alpha,
		threshold: cusumThreshold,
		ranges:    ranges,
		states:    make(map[key]*sensorState),
	}
}

// Observe ingests one reading. Out-of-range values are dropped: they do
// not displace ring entries and never touch the statistics. Returned
// anomalies are ready for the history table.
func (e *Engine) Observe(truckID, sensor string, value float64, ts time.Time) (datatypes.SensorReading, []datatypes.AnomalyRecord) {
	reading := datatypes.SensorReading{
		TruckID:   truckID,
		Sensor:    sensor,
		Value:     value,
		Timestamp: ts,
		IsValid:   e.ranges.Valid(sensor, value),
	}
	if !reading.IsValid {
		return reading, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	k := key{truck: truckID, sensor: sensor}
	st := e.states[k]
	if st == nil {
		st = &sensorState{}
		e.states[k] = st
	}

	st.ring = append(st.ring, reading)
	if len(st.ring) > ringDepth {
		st.ring = st.ring[len(st.ring)-ringDepth:]
	}

	var anomalies []datatypes.AnomalyRecord

	if st.samples == 0 {
		st.ewma = value
		st.prevEWMA = value
		st.prevEWMAAt = ts
	} else {
		mean, std := st.baseline()

		// EWMA deviation check against the baseline spread, before
		// the new value is folded in.
		if st.samples >= minSamplesForAnomaly && std > 0 {
			if z := math.Abs(value-st.ewma) / std; z > ewmaZAlert {
				anomalies = append(anomalies, datatypes.AnomalyRecord{
					TruckID:     truckID,
					Sensor:      sensor,
					Type:        datatypes.AnomalyEWMA,
					Severity:    severityFor(z, ewmaZAlert),
					Value:       value,
					EWMAValue:   st.ewma,
					CUSUMValue:  math.Max(st.cusumHigh, -st.cusumLow),
					Threshold:   ewmaZAlert,
					ZScore:      z,
					Description: "reading deviates from smoothed baseline",
					DetectedAt:  ts,
				})
			}
		}

		prev := st.ewma
		st.ewma = e.alpha*value + (1-e.alpha)*prev
		diff := value - st.ewma
		st.ewmaVar = e.alpha*diff*diff + (1-e.alpha)*st.ewmaVar

		// CUSUM against the running baseline mean.
		st.cusumHigh = math.Max(0, st.cusumHigh+(value-mean))
		st.cusumLow = math.Min(0, st.cusumLow+(value-mean))
		if sum := math.Max(st.cusumHigh, -st.cusumLow); sum > e.threshold {
			z := 0.0
			if std > 0 {
				z = math.Abs(value-mean) / std
			}
			anomalies = append(anomalies, datatypes.AnomalyRecord{
				TruckID:     truckID,
				Sensor:      sensor,
				Type:        datatypes.AnomalyCUSUM,
				Severity:    severityFor(sum, e.threshold),
				Value:       value,
				EWMAValue:   st.ewma,
				CUSUMValue:  sum,
				Threshold:   e.threshold,
				ZScore:      z,
				Description: "sustained shift from baseline",
				DetectedAt:  ts,
			})
			// Restart the accumulation so one shift raises one alert.
			st.cusumHigh, st.cusumLow = 0, 0
		}

		st.updateSlope(ts)
	}

	st.baselineSum += value
	st.baselineSq += value * value
	st.samples++
	st.updatedAt = ts

	return reading, anomalies
}

// severityFor bands a detection against its alert limit: twice the
// limit is critical.
func severityFor(magnitude, limit float64) string {
	if magnitude > 2*limit {
		return "critical"
	}
	return "warning"
}

// updateSlope derives the trend direction from EWMA movement per day.
func (s *sensorState) updateSlope(ts time.Time) {
	if s.prevEWMAAt.IsZero() || !ts.After(s.prevEWMAAt) {
		s.prevEWMA, s.prevEWMAAt = s.ewma, ts
		return
	}
	days := ts.Sub(s.prevEWMAAt).Hours() / 24
	if days <= 0 {
		return
	}
	s.slope = (s.ewma - s.prevEWMA) / days
	switch {
	case s.slope > slopeStableBand:
		s.direction = datatypes.TrendUp
	case s.slope < -slopeStableBand:
		s.direction = datatypes.TrendDown
	default:
		s.direction = datatypes.TrendStable
	}
	s.prevEWMA, s.prevEWMAAt = s.ewma, ts
}

// baseline returns the running mean and standard deviation.
func (s *sensorState) baseline() (mean, std float64) {
	if s.samples == 0 {
		return 0, 0
	}
	n := float64(s.samples)
	mean = s.baselineSum / n
	variance := s.baselineSq/n - mean*mean
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return mean, std
}

// Recent returns a copy of the ring for one chain, newest last.
func (e *Engine) Recent(truckID, sensor string) []datatypes.SensorReading {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[key{truck: truckID, sensor: sensor}]
	if st == nil {
		return nil
	}
	out := make([]datatypes.SensorReading, len(st.ring))
	copy(out, st.ring)
	return out
}

// State returns the persistable algorithm state for one chain.
func (e *Engine) State(truckID, sensor string) (datatypes.AlgorithmState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[key{truck: truckID, sensor: sensor}]
	if st == nil {
		return datatypes.AlgorithmState{}, false
	}
	return e.exportLocked(key{truck: truckID, sensor: sensor}, st), true
}

// AllStates snapshots every chain for the state-flush worker.
func (e *Engine) AllStates() []datatypes.AlgorithmState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]datatypes.AlgorithmState, 0, len(e.states))
	for k, st := range e.states {
		out = append(out, e.exportLocked(k, st))
	}
	return out
}

func (e *Engine) exportLocked(k key, st *sensorState) datatypes.AlgorithmState {
	mean, std := st.baseline()
	dir := st.direction
	if dir == "" {
		dir = datatypes.TrendStable
	}
	return datatypes.AlgorithmState{
		TruckID:        k.truck,
		Sensor:         k.sensor,
		EWMAValue:      st.ewma,
		EWMAVariance:   st.ewmaVar,
		CUSUMHigh:      st.cusumHigh,
		CUSUMLow:       st.cusumLow,
		BaselineMean:   mean,
		BaselineStd:    std,
		SampleCount:    st.samples,
		TrendDirection: dir,
		TrendSlope:     st.slope,
		UpdatedAt:      st.updatedAt,
	}
}

// Restore warm-starts chains from persisted state, typically read from
// MySQL or the Redis mirror at startup. Ring contents are not restored;
// only the statistical memory.
func (e *Engine) Restore(states []datatypes.AlgorithmState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, as := range states {
		k := key{truck: as.TruckID, sensor: as.Sensor}
		if _, exists := e.states[k]; exists {
			continue
		}
		n := float64(as.SampleCount)
		st := &sensorState{
			ewma:       as.EWMAValue,
			ewmaVar:    as.EWMAVariance,
			prevEWMA:   as.EWMAValue,
			prevEWMAAt: as.UpdatedAt,
			cusumHigh:  as.CUSUMHigh,
			cusumLow:   as.CUSUMLow,
			samples:    as.SampleCount,
			direction:  as.TrendDirection,
			slope:      as.TrendSlope,
			updatedAt:  as.UpdatedAt,
		}
		st.baselineSum = as.BaselineMean * n
		st.baselineSq = (as.BaselineStd*as.BaselineStd + as.BaselineMean*as.BaselineMean) * n
		e.states[k] = st
	}
}
