// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the fleet-health trend endpoints backed by the
// recorder ring.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// trendDefaultHours applies when the hours parameter is absent.
const trendDefaultHours = 24

// HandleTrends serves the recent health/issue series. hours bounds the
// window, 1 to 168.
func HandleTrends(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		hours := trendDefaultHours
		if raw := c.Query("hours"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 168 {
				fail(c, http.StatusBadRequest, "hours must be between 1 and 168")
				return
			}
			hours = n
		}

		now := d.now()
		cutoff := now.Add(-time.Duration(hours) * time.Hour)

		series := make([]datatypes.TrendPoint, 0)
		for _, p := range d.Recorder.Points(0) {
			if !p.Timestamp.Before(cutoff) {
				series = append(series, p)
			}
		}

		var current *datatypes.TrendPoint
		if len(series) > 0 {
			current = &series[len(series)-1]
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"hours":   hours,
			"count":   len(series),
			"current": current,
			"series":  series,
		})
	}
}

// HandleTrendRecord captures one trend snapshot on demand.
func HandleTrendRecord(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		d.Recorder.RecordOnce(c.Request.Context())

		latest := d.Recorder.Points(1)
		if len(latest) == 0 {
			fail(c, http.StatusInternalServerError, "trend snapshot failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"recorded": latest[0],
		})
	}
}
