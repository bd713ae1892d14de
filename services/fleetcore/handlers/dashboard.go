// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the dashboard-facing read endpoints: the full
// payload, the filtered action list, per-truck summaries, insights,
// and liveness.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// TruckSummary is the per-truck view served by GET /truck/{id}.
type TruckSummary struct {
	TruckID         string                 `json:"truck_id"`
	Status          datatypes.TruckStatus  `json:"status"`
	OverallPriority datatypes.Priority     `json:"overall_priority"`
	ActionCount     int                    `json:"action_count"`
	Actions         []datatypes.ActionItem `json:"actions"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// HandleDashboard serves the full command-center payload.
// bypass_cache=true forces a fresh generation cycle.
func HandleDashboard(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		bypass, ok := parseBoolQuery(c, "bypass_cache")
		if !ok {
			return
		}

		resp, err := d.dashboard(c.Request.Context(), keyDashboard, d.dashboardTTL(), bypass)
		if err != nil {
			d.logger().Error("Dashboard generation failed", "error", err)
			fail(c, http.StatusInternalServerError, "dashboard generation failed")
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleActions serves the action list filtered by priority, category,
// and truck, newest generation within the actions TTL.
func HandleActions(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var priority datatypes.Priority
		if raw := c.Query("priority"); raw != "" {
			priority = datatypes.Priority(strings.ToUpper(raw))
			if priority.Rank() < 0 {
				fail(c, http.StatusBadRequest, "unknown priority: "+raw)
				return
			}
		}
		category := strings.ToLower(c.Query("category"))
		truckID := c.Query("truck_id")

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		resp, err := d.dashboard(c.Request.Context(), keyActions, d.actionsTTL(), false)
		if err != nil {
			d.logger().Error("Action generation failed", "error", err)
			fail(c, http.StatusInternalServerError, "action generation failed")
			return
		}

		filtered := make([]datatypes.ActionItem, 0, len(resp.Actions))
		for _, item := range resp.Actions {
			if priority != "" && item.Priority != priority {
				continue
			}
			if category != "" && string(item.Category) != category {
				continue
			}
			if truckID != "" && item.TruckID != truckID {
				continue
			}
			filtered = append(filtered, item)
			if limit > 0 && len(filtered) == limit {
				break
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"generated_at":      resp.GeneratedAt,
			"cached":            resp.Cached,
			"cache_age_seconds": resp.CacheAgeSeconds,
			"count":             len(filtered),
			"actions":           filtered,
		})
	}
}

// HandleTruck serves one truck's open actions with its overall
// priority, the highest band among them.
func HandleTruck(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		truckID := c.Param("id")

		resp, err := d.dashboard(c.Request.Context(), keyDashboard, d.dashboardTTL(), false)
		if err != nil {
			d.logger().Error("Dashboard generation failed", "error", err)
			fail(c, http.StatusInternalServerError, "dashboard generation failed")
			return
		}

		summary := TruckSummary{
			TruckID:         truckID,
			Status:          d.Fleet.Status(truckID),
			OverallPriority: datatypes.PriorityNone,
			Actions:         []datatypes.ActionItem{},
			GeneratedAt:     resp.GeneratedAt,
		}
		for _, item := range resp.Actions {
			if item.TruckID != truckID {
				continue
			}
			summary.Actions = append(summary.Actions, item)
			if item.Priority.Rank() > summary.OverallPriority.Rank() {
				summary.OverallPriority = item.Priority
			}
		}
		summary.ActionCount = len(summary.Actions)

		c.JSON(http.StatusOK, summary)
	}
}

// HandleInsights serves the cross-fleet observations with the health
// rollup and per-source data quality.
func HandleInsights(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := d.dashboard(c.Request.Context(), keyDashboard, d.dashboardTTL(), false)
		if err != nil {
			d.logger().Error("Dashboard generation failed", "error", err)
			fail(c, http.StatusInternalServerError, "insight generation failed")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"generated_at": resp.GeneratedAt,
			"insights":     resp.Insights,
			"fleet_health": resp.FleetHealth,
			"data_quality": resp.DataQuality,
		})
	}
}

// HandleHealth serves liveness. It never triggers a generation cycle:
// the data-quality map comes from the cached payload when one exists.
func HandleHealth(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := d.now()

		status := "ok"
		lastCycle := d.Fleet.LastCycle()
		pollInterval := time.Duration(d.Settings.Poller.IntervalSeconds) * time.Second
		if !lastCycle.IsZero() && now.Sub(lastCycle) > 3*pollInterval {
			status = "degraded"
		}

		quality := map[string]datatypes.SourceQuality{}
		if body, ok := d.Cache.Peek(keyDashboard, d.dashboardTTL()); ok {
			var resp datatypes.DashboardResponse
			if err := json.Unmarshal(body, &resp); err == nil && resp.DataQuality != nil {
				quality = resp.DataQuality
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":         status,
			"version":        d.Settings.Service.Version,
			"uptime_seconds": now.Sub(d.Started).Seconds(),
			"last_cycle":     lastCycle,
			"status_counts":  d.Fleet.StatusCounts(),
			"data_quality":   quality,
		})
	}
}

// parseBoolQuery reads an optional boolean query parameter, answering
// 400 on garbage. The second return is false when the response has
// already been written.
func parseBoolQuery(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, name+" must be a boolean")
		return false, false
	}
	return v, true
}
