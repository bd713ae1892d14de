// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the predictive-analytics endpoints: risk scores,
// comprehensive health, correlations, DEF projection, on-demand
// detection, and SPN lookup.
package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/FleetCore/services/fleetcore/actions"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/risk"
)

// riskScoreDefaultTopN applies when top_n is absent.
const riskScoreDefaultTopN = 10

// HandleComprehensive serves the blended per-truck health score.
// dtc_string overrides the device-reported DTC payload; without it the
// truck's latest snapshot supplies the codes.
func HandleComprehensive(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		truckID := c.Param("id")

		dtcString := c.Query("dtc_string")
		if dtcString == "" {
			for _, s := range d.Fleet.Snapshots() {
				if s.TruckID == truckID {
					dtcString = s.DTC
					break
				}
			}
		}
		dtcs := risk.ParseDTCString(dtcString)

		resp, err := d.dashboard(c.Request.Context(), keyDashboard, d.dashboardTTL(), false)
		if err != nil {
			d.logger().Error("Dashboard generation failed", "error", err)
			fail(c, http.StatusInternalServerError, "health generation failed")
			return
		}

		var truckActions []datatypes.ActionItem
		for _, item := range resp.Actions {
			if item.TruckID == truckID {
				truckActions = append(truckActions, item)
			}
		}

		health := risk.Comprehensive(truckID, truckActions, dtcs, d.now())
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"health":  health,
			"dtcs":    dtcs,
		})
	}
}

// HandleRiskScores serves the top_n highest-risk trucks, scored from
// their open actions.
func HandleRiskScores(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		topN := riskScoreDefaultTopN
		if raw := c.Query("top_n"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 50 {
				fail(c, http.StatusBadRequest, "top_n must be between 1 and 50")
				return
			}
			topN = n
		}

		resp, err := d.dashboard(c.Request.Context(), keyDashboard, d.dashboardTTL(), false)
		if err != nil {
			d.logger().Error("Dashboard generation failed", "error", err)
			fail(c, http.StatusInternalServerError, "risk scoring failed")
			return
		}

		now := d.now()
		byTruck := actionsByTruck(resp.Actions)
		scores := make([]datatypes.TruckRiskScore, 0, len(byTruck))
		for truckID, items := range byTruck {
			scores = append(scores, risk.Score(truckID, risk.Inputs{
				Actions:              items,
				DaysSinceMaintenance: -1,
				ActiveSensorAlerts:   sensorAlertCount(items),
			}, now))
		}
		sort.Slice(scores, func(i, j int) bool {
			if scores[i].RiskScore != scores[j].RiskScore {
				return scores[i].RiskScore > scores[j].RiskScore
			}
			return scores[i].TruckID < scores[j].TruckID
		})
		if len(scores) > topN {
			scores = scores[:topN]
		}

		if d.History != nil && len(scores) > 0 {
			if err := d.History.InsertRiskScores(c.Request.Context(), scores); err != nil {
				d.logger().Warn("Risk history write failed", "error", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"generated_at": now,
			"count":        len(scores),
			"risk_scores":  scores,
		})
	}
}

// sensorAlertCount counts items raised by the live sensor detectors.
func sensorAlertCount(items []datatypes.ActionItem) int {
	count := 0
	for _, item := range items {
		for _, src := range item.Sources {
			if src == actions.SourceRealTimePredictive || src == actions.SourceSensorHealth {
				count++
				break
			}
		}
	}
	return count
}

// HandleCorrelations serves the multi-sensor failure signatures
// currently firing across the fleet.
func HandleCorrelations(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := d.dashboard(c.Request.Context(), keyDashboard, d.dashboardTTL(), false)
		if err != nil {
			d.logger().Error("Dashboard generation failed", "error", err)
			fail(c, http.StatusInternalServerError, "correlation detection failed")
			return
		}

		now := d.now()
		correlations := risk.Detect(actionsByTruck(resp.Actions), nil, now)

		if d.History != nil && len(correlations) > 0 {
			if err := d.History.InsertCorrelations(c.Request.Context(), correlations); err != nil {
				d.logger().Warn("Correlation history write failed", "error", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"generated_at": now,
			"count":        len(correlations),
			"correlations": correlations,
		})
	}
}

// HandleDEFPrediction projects DEF depletion for one truck.
// current_level overrides the snapshot reading; daily_miles and
// avg_mpg refine the consumption estimate when both are supplied.
func HandleDEFPrediction(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		truckID := c.Param("id")

		var levelPct *float64
		if raw := c.Query("current_level"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 || v > 100 {
				fail(c, http.StatusBadRequest, "current_level must be a percentage between 0 and 100")
				return
			}
			levelPct = &v
		} else {
			for _, s := range d.Fleet.Snapshots() {
				if s.TruckID == truckID && s.DEFLevel != nil {
					levelPct = s.DEFLevel
					break
				}
			}
		}
		if levelPct == nil {
			fail(c, http.StatusNotFound, "no DEF level available for truck "+truckID)
			return
		}

		dailyMiles, ok := parseFloatQuery(c, "daily_miles")
		if !ok {
			return
		}
		avgMPG, ok := parseFloatQuery(c, "avg_mpg")
		if !ok {
			return
		}

		// The previous recorded level tells a fill apart from normal
		// drawdown; fills reset the consumption ledger downstream.
		var prevPct *float64
		if d.History != nil {
			prev, err := d.History.LastDEFLevel(c.Request.Context(), truckID)
			if err != nil {
				d.logger().Warn("DEF history read failed", "error", err)
			} else {
				prevPct = prev
			}
		}

		pred := risk.PredictDEF(truckID, *levelPct, prevPct, dailyMiles, avgMPG, nil, d.DEF, d.now())

		if d.History != nil {
			if err := d.History.InsertDEFPrediction(c.Request.Context(), &pred); err != nil {
				d.logger().Warn("DEF history write failed", "error", err)
			}
		}

		c.JSON(http.StatusOK, pred)
	}
}

// HandleDetect runs on-demand detection for one reading and returns
// the statistical verdict with the operational decision.
func HandleDetect(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		truckID := c.Query("truck_id")
		sensor := c.Query("sensor_name")
		if truckID == "" || sensor == "" {
			fail(c, http.StatusBadRequest, "truck_id and sensor_name are required")
			return
		}

		rawCurrent := c.Query("current_value")
		if rawCurrent == "" {
			fail(c, http.StatusBadRequest, "current_value is required")
			return
		}
		current, err := strconv.ParseFloat(rawCurrent, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "current_value must be a number")
			return
		}

		baseline, ok := parseFloatQuery(c, "baseline_value")
		if !ok {
			return
		}

		now := d.now()
		met := true
		if d.Gate != nil {
			met = d.Gate.Met(truckID, sensor, now)
		}

		det, dec := actions.Detect(actions.DetectInput{
			TruckID:        truckID,
			SensorName:     sensor,
			Component:      c.Query("component"),
			CurrentValue:   current,
			BaselineValue:  baseline,
			PersistenceMet: met,
			Ranges:         d.Ranges,
			Now:            now,
		})

		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"truck_id":        truckID,
			"sensor_name":     sensor,
			"persistence_met": met,
			"detection":       det,
			"decision":        dec,
		})
	}
}

// HandleSPN resolves one J1939 suspect parameter number.
func HandleSPN(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Param("spn"))
		spn, err := strconv.Atoi(raw)
		if err != nil || spn <= 0 {
			fail(c, http.StatusBadRequest, "spn must be a positive integer")
			return
		}

		def, ok := risk.LookupSPN(spn)
		if !ok {
			fail(c, http.StatusNotFound, "unknown spn "+raw)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"spn":     spn,
			"def":     def,
		})
	}
}

// parseFloatQuery reads an optional float query parameter, answering
// 400 on garbage. The second return is false when the response has
// already been written.
func parseFloatQuery(c *gin.Context, name string) (*float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, name+" must be a number")
		return nil, false
	}
	return &v, true
}
