// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the command-center HTTP API. Every
// handler is a closure over Deps so routes.SetupRoutes can wire the
// whole surface from one place.
//
// Error responses use a uniform envelope:
//
//	{"success": false, "error": "<message>"}
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/cache"
	"github.com/AleutianAI/FleetCore/services/fleetcore/config"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/observability"
	"github.com/AleutianAI/FleetCore/services/fleetcore/risk"
)

// Cache keys for the generated payloads. Deterministic: the dashboard
// and actions endpoints each own one key with their own TTL.
const (
	keyDashboard = "dashboard"
	keyActions   = "actions"
)

// FleetView is the read side of the telemetry loop. *workers.TelemetryLoop
// satisfies it.
type FleetView interface {
	Snapshots() []*datatypes.SensorSnapshot
	Status(truckID string) datatypes.TruckStatus
	StatusCounts() datatypes.StatusCounts
	LastCycle() time.Time
}

// Generator produces one full command-center payload. *aggregator.Aggregator
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, statuses datatypes.StatusCounts) *datatypes.DashboardResponse
}

// TrendRing is the fleet-health history. *workers.TrendRecorder
// satisfies it.
type TrendRing interface {
	Points(limit int) []datatypes.TrendPoint
	RecordOnce(ctx context.Context)
}

// PersistenceChecker reports whether a sensor's temporal gate is
// currently met. *trend.Gate satisfies it.
type PersistenceChecker interface {
	Met(truckID, sensor string, now time.Time) bool
}

// ResponseMirror shadows generated payloads in Redis so instances can
// share them. *rediscache.Mirror satisfies it.
type ResponseMirror interface {
	SetResponse(ctx context.Context, key string, body []byte, ttl time.Duration) error
	GetResponse(ctx context.Context, key string) ([]byte, bool, error)
}

// HistorySink appends analytics output to the operational store.
// *mysql.Store satisfies it. All writes are best effort: the response
// never waits on a failed insert.
type HistorySink interface {
	InsertRiskScores(ctx context.Context, scores []datatypes.TruckRiskScore) error
	InsertCorrelations(ctx context.Context, correlations []datatypes.FailureCorrelation) error
	InsertDEFPrediction(ctx context.Context, p *datatypes.DEFPrediction) error
	LastDEFLevel(ctx context.Context, truckID string) (*float64, error)
}

// Deps carries everything the handler closures need. Optional fields
// (Mirror, History, Gate, Live, Obs) may be nil; handlers degrade
// around them.
type Deps struct {
	Settings  *config.Settings
	Fleet     FleetView
	Generator Generator
	Cache     *cache.ResponseCache
	Mirror    ResponseMirror
	Recorder  TrendRing
	Gate      PersistenceChecker
	Ranges    datatypes.RangeSet
	History   HistorySink
	DEF       risk.DEFParams
	Live      *LiveHub
	Obs       *observability.PipelineMetrics
	Log       *logging.Logger
	Started   time.Time

	// Clock pins time for tests; nil means UTC wall clock.
	Clock func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}

func (d *Deps) logger() *logging.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logging.Default()
}

func (d *Deps) dashboardTTL() time.Duration {
	return time.Duration(d.Settings.Redis.DashboardTTLSeconds) * time.Second
}

func (d *Deps) actionsTTL() time.Duration {
	return time.Duration(d.Settings.Redis.ActionsTTLSeconds) * time.Second
}

// fail writes the standard error envelope.
func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "error": msg})
}

// dashboard returns the generated payload for key, serving from the
// local TTL cache, then the Redis shadow, then a fresh generation
// cycle. The Cached flag and age reflect the local cache only.
func (d *Deps) dashboard(ctx context.Context, key string, ttl time.Duration, bypass bool) (*datatypes.DashboardResponse, error) {
	build := func(ctx context.Context) ([]byte, error) {
		if d.Mirror != nil && !bypass {
			body, ok, err := d.Mirror.GetResponse(ctx, key)
			if err != nil {
				d.logger().Debug("Response mirror read failed",
					"key", key,
					"error", err)
			} else if ok {
				if d.Obs != nil {
					d.Obs.RecordCacheEvent("redis", "hit")
				}
				return body, nil
			}
		}

		resp := d.Generator.Generate(ctx, d.Fleet.StatusCounts())
		body, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		if d.Mirror != nil {
			if err := d.Mirror.SetResponse(ctx, key, body, ttl); err != nil {
				d.logger().Debug("Response mirror write failed",
					"key", key,
					"error", err)
			}
		}
		return body, nil
	}

	body, cached, age, err := d.Cache.GetOrBuild(ctx, key, ttl, bypass, build)
	if err != nil {
		return nil, err
	}
	if d.Obs != nil {
		event := "miss"
		if cached {
			event = "hit"
		}
		d.Obs.RecordCacheEvent("local", event)
	}

	var resp datatypes.DashboardResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	resp.Cached = cached
	if cached {
		resp.CacheAgeSeconds = age.Seconds()
	}
	return &resp, nil
}

// actionsByTruck groups a payload's action items per truck.
func actionsByTruck(items []datatypes.ActionItem) map[string][]datatypes.ActionItem {
	out := make(map[string][]datatypes.ActionItem)
	for _, item := range items {
		out[item.TruckID] = append(out[item.TruckID], item)
	}
	return out
}

// HandleConfig serves the effective tunables: service identity, poller
// cadence, analytics knobs, validity ranges, and DEF constants.
// Connection settings stay out of the payload.
func HandleConfig(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"service":   d.Settings.Service,
			"poller":    d.Settings.Poller,
			"analytics": d.Settings.Analytics,
			"redis_ttl": gin.H{
				"dashboard_seconds": d.Settings.Redis.DashboardTTLSeconds,
				"actions_seconds":   d.Settings.Redis.ActionsTTLSeconds,
			},
			"sensor_ranges": d.Ranges,
			"def_params":    d.DEF,
		})
	}
}
