// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains on-demand single-sensor detection: one reading
// against its baseline, scored and decided in one pass. Backs the
// detection endpoint and the real-time adapter.
package actions

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// DetectInput is one reading to evaluate.
type DetectInput struct {
	TruckID    string
	SensorName string

	// Component defaults to the sensor name when empty.
	Component string

	CurrentValue  float64
	BaselineValue *float64

	// PersistenceMet reports whether the temporal gate for this sensor
	// confirmed the condition; without it a would-be STOP downgrades.
	PersistenceMet bool

	Ranges datatypes.RangeSet
	Now    time.Time
}

// Detection is the raw statistical verdict before any decision.
type Detection struct {
	AnomalyScore   float64               `json:"anomaly_score"` // [0,1]
	DeviationPct   float64               `json:"deviation_pct"`
	AnomalyType    datatypes.AnomalyType `json:"anomaly_type"`
	OutOfRange     bool                  `json:"out_of_range"`
	DaysToCritical *float64              `json:"days_to_critical,omitempty"`
}

// Decision is the operational verdict derived from a Detection.
type Decision struct {
	PriorityScore float64              `json:"priority_score"`
	Priority      datatypes.Priority   `json:"priority"`
	ActionType    datatypes.ActionType `json:"action_type"`
	ActionSteps   []string             `json:"action_steps"`
	Confidence    datatypes.Confidence `json:"confidence"`
}

// Detect evaluates one reading and returns both the statistical
// detection and the operational decision. Deterministic for identical
// inputs.
func Detect(in DetectInput) (Detection, Decision) {
	det := detect(in)
	return det, decide(in, det)
}

func detect(in DetectInput) Detection {
	det := Detection{AnomalyType: datatypes.AnomalyEWMA}

	if r, ok := in.Ranges[in.SensorName]; ok && !r.Contains(in.CurrentValue) {
		det.OutOfRange = true
		det.AnomalyType = datatypes.AnomalyThreshold
		det.AnomalyScore = 1.0
		det.DeviationPct = 100
	} else if in.BaselineValue != nil {
		base := *in.BaselineValue
		denom := math.Max(math.Abs(base), 1.0)
		det.DeviationPct = math.Abs(in.CurrentValue-base) / denom * 100
		// 50% off baseline saturates the score.
		det.AnomalyScore = math.Min(1.0, det.DeviationPct/50.0)
	}

	switch {
	case det.AnomalyScore >= 0.9:
		det.DaysToCritical = datatypes.Float(1)
	case det.AnomalyScore >= 0.7:
		det.DaysToCritical = datatypes.Float(3)
	case det.AnomalyScore >= 0.5:
		det.DaysToCritical = datatypes.Float(7)
	}

	return det
}

func decide(in DetectInput, det Detection) Decision {
	component := in.Component
	if component == "" {
		component = in.SensorName
	}

	score, priority := ComputeScore(ScoreInputs{
		DaysToCritical: det.DaysToCritical,
		AnomalyScore:   datatypes.Float(det.AnomalyScore),
		Component:      component,
	})
	actionType := SelectActionType(priority, det.DaysToCritical, in.PersistenceMet)

	confidence := datatypes.ConfidenceLow
	switch {
	case det.OutOfRange || in.PersistenceMet:
		confidence = datatypes.ConfidenceHigh
	case det.AnomalyScore >= 0.5:
		confidence = datatypes.ConfidenceMedium
	}

	return Decision{
		PriorityScore: score,
		Priority:      priority,
		ActionType:    actionType,
		ActionSteps:   Steps(component, priority, actionType),
		Confidence:    confidence,
	}
}

// DetectAction turns a detection pass into a full action item for the
// real-time adapter.
func DetectAction(in DetectInput) *datatypes.ActionItem {
	det, dec := Detect(in)
	if dec.Priority == datatypes.PriorityNone || dec.Priority == "" {
		return nil
	}

	component := in.Component
	if component == "" {
		component = in.SensorName
	}
	norm := Normalize(component)

	item := &datatypes.ActionItem{
		ID:                  uuid.NewString(),
		TruckID:             in.TruckID,
		Priority:            dec.Priority,
		PriorityScore:       dec.PriorityScore,
		Category:            datatypes.CategoryMaintenance,
		Component:           component,
		NormalizedComponent: norm,
		Title:               fmt.Sprintf("%s anomaly on %s", in.SensorName, in.TruckID),
		Description: fmt.Sprintf("%s reading %.1f deviates %.0f%% from baseline",
			in.SensorName, in.CurrentValue, det.DeviationPct),
		DaysToCritical: det.DaysToCritical,
		CurrentValue:   fmt.Sprintf("%.1f", in.CurrentValue),
		Confidence:     dec.Confidence,
		ActionType:     dec.ActionType,
		ActionSteps:    dec.ActionSteps,
		Icon:           Icon(datatypes.CategoryMaintenance, component),
		Sources:        []string{SourceRealTimePredictive},
		CreatedAt:      in.Now,
	}
	return item
}
