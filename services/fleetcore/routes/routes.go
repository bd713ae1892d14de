// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/FleetCore/services/fleetcore/handlers"
	"github.com/AleutianAI/FleetCore/services/fleetcore/middleware"
)

// SetupRoutes registers the full command-center surface. The rate
// limiter guards the two mutating endpoints; everything else is a read.
func SetupRoutes(router *gin.Engine, d *handlers.Deps, limiter *middleware.RateLimiter) {
	router.Use(otelgin.Middleware(d.Settings.Service.Name))
	if d.Obs != nil {
		router.Use(middleware.Metrics(d.Obs))
	}

	router.GET("/health", handlers.HandleHealth(d))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group(d.Settings.Service.BasePath)
	{
		api.GET("/dashboard", handlers.HandleDashboard(d))
		api.GET("/actions", handlers.HandleActions(d))
		api.GET("/insights", handlers.HandleInsights(d))
		api.GET("/health", handlers.HandleHealth(d))
		api.GET("/config", handlers.HandleConfig(d))

		api.GET("/trends", handlers.HandleTrends(d))
		api.POST("/trends/record", limiter.Middleware(), handlers.HandleTrendRecord(d))

		api.GET("/risk-scores", handlers.HandleRiskScores(d))
		api.GET("/correlations", handlers.HandleCorrelations(d))
		api.GET("/def-prediction/:id", handlers.HandleDEFPrediction(d))
		api.POST("/detect", limiter.Middleware(), handlers.HandleDetect(d))
		api.GET("/spn/:spn", handlers.HandleSPN(d))

		truck := api.Group("/truck")
		{
			truck.GET("/:id", handlers.HandleTruck(d))
			truck.GET("/:id/comprehensive", handlers.HandleComprehensive(d))
		}

		if d.Settings.Service.LiveFeed && d.Live != nil {
			api.GET("/live", handlers.HandleLive(d.Live))
		}
	}
}
