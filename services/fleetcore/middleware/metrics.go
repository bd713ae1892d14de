// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the per-request metrics middleware.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/FleetCore/services/fleetcore/observability"
)

// Metrics records request count and latency per route template. The
// template, not the raw path, keys the series so /truck/:id stays one
// label value.
func Metrics(obs *observability.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		obs.RecordRequest(endpoint,
			observability.StatusClass(c.Writer.Status()),
			time.Since(start).Seconds())
	}
}
