// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/cache"
	"github.com/AleutianAI/FleetCore/services/fleetcore/config"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/risk"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeFleet struct {
	snaps    []*datatypes.SensorSnapshot
	statuses map[string]datatypes.TruckStatus
	counts   datatypes.StatusCounts
	last     time.Time
}

func (f *fakeFleet) Snapshots() []*datatypes.SensorSnapshot { return f.snaps }

func (f *fakeFleet) Status(truckID string) datatypes.TruckStatus {
	if s, ok := f.statuses[truckID]; ok {
		return s
	}
	return datatypes.StatusOffline
}

func (f *fakeFleet) StatusCounts() datatypes.StatusCounts { return f.counts }
func (f *fakeFleet) LastCycle() time.Time                 { return f.last }

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	resp  *datatypes.DashboardResponse
}

func (g *fakeGenerator) Generate(_ context.Context, _ datatypes.StatusCounts) *datatypes.DashboardResponse {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.resp
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeRing struct {
	mu     sync.Mutex
	points []datatypes.TrendPoint
	next   datatypes.TrendPoint
}

func (r *fakeRing) Points(limit int) []datatypes.TrendPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	pts := r.points
	if limit > 0 && len(pts) > limit {
		pts = pts[len(pts)-limit:]
	}
	out := make([]datatypes.TrendPoint, len(pts))
	copy(out, pts)
	return out
}

func (r *fakeRing) RecordOnce(context.Context) {
	r.mu.Lock()
	r.points = append(r.points, r.next)
	r.mu.Unlock()
}

type fakeGate struct{ met bool }

func (g *fakeGate) Met(string, string, time.Time) bool { return g.met }

type fakeHistory struct {
	mu           sync.Mutex
	riskScores   []datatypes.TruckRiskScore
	correlations []datatypes.FailureCorrelation
	defPreds     []datatypes.DEFPrediction
	lastDEFPct   *float64
}

func (h *fakeHistory) InsertRiskScores(_ context.Context, scores []datatypes.TruckRiskScore) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.riskScores = append(h.riskScores, scores...)
	return nil
}

func (h *fakeHistory) InsertCorrelations(_ context.Context, correlations []datatypes.FailureCorrelation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.correlations = append(h.correlations, correlations...)
	return nil
}

func (h *fakeHistory) InsertDEFPrediction(_ context.Context, p *datatypes.DEFPrediction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defPreds = append(h.defPreds, *p)
	return nil
}

func (h *fakeHistory) LastDEFLevel(_ context.Context, _ string) (*float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastDEFPct, nil
}

// testPayload is the canned generation output the fakes serve.
func testPayload() *datatypes.DashboardResponse {
	return &datatypes.DashboardResponse{
		GeneratedAt: testNow,
		Version:     "2.1.0",
		FleetHealth: datatypes.FleetHealth{Score: 82, Status: "Bueno", TrucksTotal: 3},
		Actions: []datatypes.ActionItem{
			{
				ID:                  "a-1",
				TruckID:             "T-100",
				Priority:            datatypes.PriorityCritical,
				PriorityScore:       91.0,
				Category:            datatypes.CategoryMaintenance,
				Component:           "cooling_system",
				NormalizedComponent: "cooling_system",
				Sources:             []string{"Real-Time Predictive"},
			},
			{
				ID:                  "a-2",
				TruckID:             "T-100",
				Priority:            datatypes.PriorityHigh,
				PriorityScore:       70.0,
				Category:            datatypes.CategoryMaintenance,
				Component:           "oil_press",
				NormalizedComponent: "oil_system",
				Sources:             []string{"Sensor Health Monitor"},
			},
			{
				ID:                  "a-3",
				TruckID:             "T-200",
				Priority:            datatypes.PriorityLow,
				PriorityScore:       25.0,
				Category:            datatypes.CategoryEfficiency,
				Component:           "mpg",
				NormalizedComponent: "efficiency",
				Sources:             []string{"Idle Analysis"},
			},
		},
		DataQuality: map[string]datatypes.SourceQuality{
			"Real-Time Predictive": {Available: true, Items: 2},
		},
	}
}

func newTestDeps(gen *fakeGenerator) *Deps {
	settings := config.DefaultSettings()
	return &Deps{
		Settings: &settings,
		Fleet: &fakeFleet{
			statuses: map[string]datatypes.TruckStatus{"T-100": datatypes.StatusMoving},
			counts:   datatypes.StatusCounts{Moving: 1, Offline: 2, Total: 3},
			last:     testNow.Add(-20 * time.Second),
		},
		Generator: gen,
		Cache:     cache.New(cache.WithClock(func() time.Time { return testNow })),
		Recorder:  &fakeRing{},
		Ranges:    datatypes.DefaultRanges(),
		DEF:       risk.DefaultDEFParams(),
		Log:       logging.Default(),
		Started:   testNow.Add(-time.Minute),
		Clock:     func() time.Time { return testNow },
	}
}

func newRouter(d *Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/dashboard", HandleDashboard(d))
	r.GET("/actions", HandleActions(d))
	r.GET("/truck/:id", HandleTruck(d))
	r.GET("/truck/:id/comprehensive", HandleComprehensive(d))
	r.GET("/insights", HandleInsights(d))
	r.GET("/health", HandleHealth(d))
	r.GET("/config", HandleConfig(d))
	r.GET("/trends", HandleTrends(d))
	r.POST("/trends/record", HandleTrendRecord(d))
	r.GET("/risk-scores", HandleRiskScores(d))
	r.GET("/correlations", HandleCorrelations(d))
	r.GET("/def-prediction/:id", HandleDEFPrediction(d))
	r.POST("/detect", HandleDetect(d))
	r.GET("/spn/:spn", HandleSPN(d))
	return r
}

func doGET(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return w, body
}

func doPOST(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return w, body
}

func TestDashboardCachesSecondRequest(t *testing.T) {
	gen := &fakeGenerator{resp: testPayload()}
	r := newRouter(newTestDeps(gen))

	w, body := doGET(t, r, "/dashboard")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, 1, gen.callCount())

	w, body = doGET(t, r, "/dashboard")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, 1, gen.callCount(), "second request must hit the cache")
}

func TestDashboardBypassCacheRegenerates(t *testing.T) {
	gen := &fakeGenerator{resp: testPayload()}
	r := newRouter(newTestDeps(gen))

	doGET(t, r, "/dashboard")
	w, body := doGET(t, r, "/dashboard?bypass_cache=true")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, 2, gen.callCount())
}

func TestDashboardRejectsBadBypassFlag(t *testing.T) {
	r := newRouter(newTestDeps(&fakeGenerator{resp: testPayload()}))

	w, body := doGET(t, r, "/dashboard?bypass_cache=banana")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "bypass_cache")
}

func TestActionsFilterByPriorityAndTruck(t *testing.T) {
	r := newRouter(newTestDeps(&fakeGenerator{resp: testPayload()}))

	w, body := doGET(t, r, "/actions?priority=critical&truck_id=T-100")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	actions := body["actions"].([]any)
	require.Len(t, actions, 1)
	assert.Equal(t, "a-1", actions[0].(map[string]any)["id"])
}

func TestActionsFilterByCategoryAndLimit(t *testing.T) {
	r := newRouter(newTestDeps(&fakeGenerator{resp: testPayload()}))

	_, body := doGET(t, r, "/actions?category=maintenance")
	assert.Equal(t, float64(2), body["count"])

	_, body = doGET(t, r, "/actions?category=maintenance&limit=1")
	assert.Equal(t, float64(1), body["count"])
}

func TestActionsRejectsUnknownPriority(t *testing.T) {
	r := newRouter(newTestDeps(&fakeGenerator{resp: testPayload()}))

	w, body := doGET(t, r, "/actions?priority=URGENT")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestTruckSummaryOverallPriority(t *testing.T) {
	r := newRouter(newTestDeps(&fakeGenerator{resp: testPayload()}))

	w, body := doGET(t, r, "/truck/T-100")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T-100", body["truck_id"])
	assert.Equal(t, "MOVING", body["status"])
	assert.Equal(t, "CRITICAL", body["overall_priority"])
	assert.Equal(t, float64(2), body["action_count"])
}

func TestTruckSummaryNoIssues(t *testing.T) {
	r := newRouter(newTestDeps(&fakeGenerator{resp: testPayload()}))

	_, body := doGET(t, r, "/truck/T-999")
	assert.Equal(t, "NONE", body["overall_priority"])
	assert.Equal(t, "OFFLINE", body["status"])
	assert.Equal(t, float64(0), body["action_count"])
}

func TestInsightsCarriesHealthAndQuality(t *testing.T) {
	r := newRouter(newTestDeps(&fakeGenerator{resp: testPayload()}))

	w, body := doGET(t, r, "/insights")
	assert.Equal(t, http.StatusOK, w.Code)

	health := body["fleet_health"].(map[string]any)
	assert.Equal(t, float64(82), health["score"])
	assert.Contains(t, body["data_quality"], "Real-Time Predictive")
}

func TestHealthReportsOKWithoutGenerating(t *testing.T) {
	gen := &fakeGenerator{resp: testPayload()}
	r := newRouter(newTestDeps(gen))

	w, body := doGET(t, r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 0, gen.callCount(), "liveness must not trigger generation")
}

func TestHealthDegradedWhenCyclesStall(t *testing.T) {
	gen := &fakeGenerator{resp: testPayload()}
	d := newTestDeps(gen)
	d.Fleet = &fakeFleet{last: testNow.Add(-10 * time.Minute)}
	r := newRouter(d)

	_, body := doGET(t, r, "/health")
	assert.Equal(t, "degraded", body["status"])
}

func TestConfigOmitsConnectionSettings(t *testing.T) {
	r := newRouter(newTestDeps(&fakeGenerator{resp: testPayload()}))

	w, body := doGET(t, r, "/config")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body, "sensor_ranges")
	assert.NotContains(t, body, "wialon")
	assert.NotContains(t, body, "fleet")
}
