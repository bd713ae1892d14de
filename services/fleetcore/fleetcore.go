// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fleetcore assembles the fuel-telemetry pipeline and the
// command-center API into one runnable service.
//
// # Description
//
// New wires the full dependency graph: the secret vault, the upstream
// telematics reader, the tank registry, the optional operational store
// and Redis/InfluxDB mirrors, the embedded state database, the trend
// and persistence engines, the telemetry loop, the background workers,
// and the HTTP surface. Run starts everything and blocks until a
// shutdown signal, then drains the server, flushes warm state, and
// closes every connection.
//
// Open source deployments call:
//
//	svc, err := fleetcore.New(settings, nil)
//	if err != nil { ... }
//	svc.Run()
//
// Enterprise deployments inject delivery and compliance extensions:
//
//	opts := extensions.DefaultOptions().
//	    WithNotifier(smsNotifier).
//	    WithAudit(complianceLog)
//	svc, err := fleetcore.New(settings, &opts)
package fleetcore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/FleetCore/pkg/extensions"
	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/actions"
	"github.com/AleutianAI/FleetCore/services/fleetcore/aggregator"
	"github.com/AleutianAI/FleetCore/services/fleetcore/cache"
	"github.com/AleutianAI/FleetCore/services/fleetcore/config"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/estimator"
	"github.com/AleutianAI/FleetCore/services/fleetcore/handlers"
	"github.com/AleutianAI/FleetCore/services/fleetcore/middleware"
	"github.com/AleutianAI/FleetCore/services/fleetcore/observability"
	"github.com/AleutianAI/FleetCore/services/fleetcore/registry"
	"github.com/AleutianAI/FleetCore/services/fleetcore/risk"
	"github.com/AleutianAI/FleetCore/services/fleetcore/routes"
	statedb "github.com/AleutianAI/FleetCore/services/fleetcore/storage/badger"
	"github.com/AleutianAI/FleetCore/services/fleetcore/storage/mysql"
	"github.com/AleutianAI/FleetCore/services/fleetcore/storage/rediscache"
	"github.com/AleutianAI/FleetCore/services/fleetcore/trend"
	"github.com/AleutianAI/FleetCore/services/fleetcore/wialon"
	"github.com/AleutianAI/FleetCore/services/fleetcore/workers"
)

const (
	// startupTimeout bounds the initial loads: units map, operational
	// store ping, state restore.
	startupTimeout = 30 * time.Second

	// shutdownTimeout bounds the HTTP drain after a signal.
	shutdownTimeout = 10 * time.Second

	// notifyTimeout bounds one extension callback; notifiers enqueue
	// and return.
	notifyTimeout = 5 * time.Second
)

// Service is the public interface of the assembled pipeline.
//
// Implementations must be safe for concurrent use. Run blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the workers and the HTTP server and blocks until a
	// shutdown signal or a fatal server error.
	Run() error

	// Router returns the underlying Gin engine for integration tests.
	// Callers must not modify routes after construction.
	Router() *gin.Engine
}

type service struct {
	cfg  config.Settings
	opts extensions.ServiceOptions
	log  *logging.Logger
	obs  *observability.PipelineMetrics

	vault  *config.Vault
	reader *wialon.Reader
	reg    *registry.Registry

	store  *mysql.Store       // nil when the operational store is unconfigured
	redis  *rediscache.Mirror // nil without Redis
	influx *workers.InfluxMirror

	stateDB *badgerdb.DB
	states  *statedb.StateStore
	gc      *statedb.GCRunner

	trends   *trend.Engine
	gate     *trend.Gate
	loop     *workers.TelemetryLoop
	flusher  *workers.StateFlusher
	recorder *workers.TrendRecorder
	agg      *aggregator.Aggregator
	hub      *handlers.LiveHub
	watcher  *config.Watcher

	respCache *cache.ResponseCache
	router    *gin.Engine

	tracerCleanup func(context.Context)
	started       time.Time
}

// New wires the service from validated settings. A nil opts runs the
// open source defaults: alerts and audit events are computed but not
// delivered anywhere beyond the API.
//
// Fatal here, by contract: the vault, the units map, the tank
// registry, a configured-but-unreachable operational store, and the
// embedded state database. Everything else degrades with a warning.
func New(settings config.Settings, opts *extensions.ServiceOptions) (Service, error) {
	if opts == nil {
		defaults := extensions.DefaultOptions()
		opts = &defaults
	}

	s := &service{
		cfg:     settings,
		opts:    *opts,
		log:     logging.Default().With("service", settings.Service.Name),
		started: time.Now().UTC(),
	}

	s.obs = observability.DefaultMetrics
	if s.obs == nil {
		s.obs = observability.InitMetrics()
	}

	vault, err := config.NewVault()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the secret vault: %w", err)
	}
	s.vault = vault

	cleanup, err := s.initTracer()
	if err != nil {
		s.log.Warn("Tracing disabled", "error", err)
	} else {
		s.tracerCleanup = cleanup
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := s.initFleet(ctx); err != nil {
		s.cleanup()
		return nil, err
	}
	if err := s.initStores(ctx); err != nil {
		s.cleanup()
		return nil, err
	}
	s.applyStoredOverrides(ctx)
	if err := s.initPipeline(ctx); err != nil {
		s.cleanup()
		return nil, err
	}
	s.initWatcher()
	s.initRouter()

	return s, nil
}

// Run starts the workers and HTTP server and blocks until shutdown.
//
// # Description
//
// SIGINT and SIGTERM trigger a graceful stop: the listener drains
// in-flight requests, the workers finish their current cycle, the
// state flusher writes a final snapshot of every Kalman filter and
// EWMA/CUSUM chain, and all connections close. A clean stop returns
// nil; a listener failure returns the error.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.audit(ctx, "system.start", "fleet", map[string]any{
		"version": s.cfg.Service.Version,
		"trucks":  s.reg.Count(),
	})

	if s.watcher != nil {
		go s.watcher.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.loop.Run(gctx); return nil })
	g.Go(func() error { s.flusher.Run(gctx); return nil })
	g.Go(func() error { s.recorder.Run(gctx); return nil })

	addr := fmt.Sprintf("%s:%d", s.cfg.Service.Host, s.cfg.Service.Port)
	srv := &http.Server{Addr: addr, Handler: s.router}

	serverErr := make(chan error, 1)
	go func() {
		s.log.Info("Command center listening",
			"addr", addr,
			"base_path", s.cfg.Service.BasePath,
			"trucks", s.reg.Count())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
		stop()
	case <-ctx.Done():
		s.log.Info("Shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		s.log.Warn("HTTP server did not drain cleanly", "error", err)
	}

	// The flusher writes its final state snapshot on the way out.
	_ = g.Wait()

	s.audit(context.Background(), "system.stop", "fleet", nil)
	s.log.Info("Shutdown complete")
	return runErr
}

// Router returns the configured Gin engine for integration tests.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Initialization
// =============================================================================

// initFleet dials the upstream telematics database, reads the units
// map, and builds the tank registry. An unreadable registry is fatal:
// without capacities the estimators cannot run.
func (s *service) initFleet(ctx context.Context) error {
	reader, err := wialon.NewReader(wialon.ReaderConfig{
		DB:     s.cfg.Wialon,
		Poller: s.cfg.Poller,
		Vault:  s.vault,
		Logger: s.log,
	})
	if err != nil {
		return fmt.Errorf("failed to create the telemetry reader: %w", err)
	}
	s.reader = reader

	upstream, err := reader.LoadUnitsMap(ctx)
	if err != nil {
		return fmt.Errorf("failed to read the units map: %w", err)
	}

	merged := registry.Merge(upstream, s.cfg.Trucks)
	reg, err := registry.New(merged)
	if err != nil {
		return fmt.Errorf("failed to build the tank registry: %w", err)
	}
	reader.Bind(reg)
	s.reg = reg

	s.log.Info("Tank registry loaded",
		"trucks", reg.Count(),
		"upstream_rows", len(upstream),
		"overrides", len(s.cfg.Trucks))
	return nil
}

// initStores opens the operational store, the Redis mirror, the
// InfluxDB mirror, and the embedded state database. The operational
// store is fatal when configured but unreachable; the mirrors degrade.
func (s *service) initStores(ctx context.Context) error {
	if s.cfg.FleetDB().Configured() {
		err := s.vault.WithSecret(config.SecretFleetDBPass, func(secret string) error {
			store, err := mysql.Open(s.cfg.FleetDB(), secret, s.log)
			if err != nil {
				return err
			}
			s.store = store
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to open the operational store: %w", err)
		}
		if err := s.store.Ping(ctx); err != nil {
			return fmt.Errorf("operational store unreachable: %w", err)
		}
		s.log.Info("Operational store connected", "host", s.cfg.FleetDB().Host)
	} else {
		s.log.Warn("Operational store not configured; running without persistence")
	}

	if s.cfg.Redis.URL != "" {
		mirror, err := rediscache.Open(ctx, s.cfg.Redis.URL)
		if err != nil {
			s.log.Warn("Redis unavailable; response and state mirroring disabled", "error", err)
		} else {
			s.redis = mirror
		}
	}

	if s.cfg.Influx.Enabled() {
		s.influx = workers.NewInfluxMirror(s.cfg.Influx)
		s.log.Info("InfluxDB metric mirror enabled", "bucket", s.cfg.Influx.Bucket)
	}

	bcfg := statedb.DefaultConfig()
	bcfg.Path = config.ExpandPath(s.cfg.State.Dir)
	bcfg.InMemory = s.cfg.State.InMemory
	bcfg.Logger = s.log.Slog()
	db, err := statedb.Open(bcfg)
	if err != nil {
		return fmt.Errorf("failed to open the state database: %w", err)
	}
	s.stateDB = db
	s.states = statedb.NewStateStore(db)

	if interval := time.Duration(s.cfg.State.GCIntervalMinutes) * time.Minute; interval > 0 && !bcfg.InMemory {
		gc, err := statedb.NewGCRunner(db, interval, bcfg.GCDiscardRatio, s.log.Slog())
		if err != nil {
			s.log.Warn("State GC disabled", "error", err)
		} else {
			gc.Start()
			s.gc = gc
		}
	}
	return nil
}

// applyStoredOverrides overlays operator rows from the
// command_center_config table onto the loaded settings. Rows the
// engine owns are rejected there and logged here.
func (s *service) applyStoredOverrides(ctx context.Context) {
	if s.store == nil {
		return
	}
	rows, err := s.store.LoadConfigOverrides(ctx)
	if err != nil {
		s.log.Warn("Failed to load stored config overrides", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	applied, errs := config.ApplyOverrides(&s.cfg, rows)
	for _, e := range errs {
		s.log.Warn("Rejected config override", "error", e)
	}
	if applied > 0 {
		s.log.Info("Applied stored config overrides", "applied", applied)
	}
}

// initPipeline builds the analytics engines, restores warm state, and
// wires the telemetry loop, the background workers, and the
// aggregator.
func (s *service) initPipeline(ctx context.Context) error {
	ranges := datatypes.DefaultRanges()
	now := time.Now().UTC()

	s.trends = trend.NewEngine(s.cfg.Analytics.EWMAAlpha, s.cfg.Analytics.CUSUMThreshold, ranges)
	s.gate = trend.NewGate(nil)
	s.restoreAlgorithmStates(ctx)

	tuning := estimator.DefaultTuning()
	tcfg := workers.TelemetryConfig{
		Source:   s.reader,
		Registry: s.reg,
		Trends:   s.trends,
		Gate:     s.gate,
		Tuning:   tuning,
		Interval: time.Duration(s.cfg.Poller.IntervalSeconds) * time.Second,
		Workers:  s.cfg.Poller.Workers,
		Obs:      s.obs,
		Logger:   s.log,
		OnRefuel: s.notifyRefuel,
		OnDrop:   s.notifyDrop,
	}
	if s.store != nil {
		tcfg.Store = s.store
	}
	if s.influx != nil {
		tcfg.Mirror = s.influx
	}
	s.loop = workers.NewTelemetryLoop(tcfg)

	estStates, err := s.states.LoadEstimatorStates(tuning.StateMaxAge, now)
	if err != nil {
		s.log.Warn("Failed to restore estimator state; starting cold", "error", err)
	} else if len(estStates) > 0 {
		s.loop.RestoreEstimators(estStates, now)
		s.log.Info("Restored estimator state", "trucks", len(estStates))
	}

	fcfg := workers.FlusherConfig{
		Estimators: s.loop,
		Algorithms: s.trends,
		Sink:       s.states,
		Interval:   time.Duration(s.cfg.Analytics.StateFlushSeconds) * time.Second,
		Obs:        s.obs,
		Logger:     s.log,
	}
	if s.store != nil {
		fcfg.DB = s.store
	}
	if s.redis != nil {
		fcfg.Redis = s.redis
	}
	s.flusher = workers.NewStateFlusher(fcfg)

	adapters := []actions.Adapter{
		&actions.RealTimeAdapter{View: s.loop, Trends: s.trends, Gate: s.gate, Ranges: ranges},
		&actions.MaintenanceAdapter{Trends: s.trends},
		&actions.SensorHealthAdapter{View: s.loop},
		&actions.DTCAdapter{View: s.loop},
		&actions.FuelEventsAdapter{Drops: s.loop},
		&actions.IdleAnalysisAdapter{View: s.loop},
	}
	s.agg = aggregator.New(adapters, s.reg.Count, s.cfg.Service.Version, s.log)

	rcfg := workers.RecorderConfig{
		Sample: func(ctx context.Context) (datatypes.TrendPoint, error) {
			resp := s.agg.Generate(ctx, s.loop.StatusCounts())
			return trendPointFrom(resp), nil
		},
		Interval: time.Duration(s.cfg.Analytics.TrendRecordMinutes) * time.Minute,
		MaxRing:  s.cfg.Analytics.TrendRingMax,
		Logger:   s.log,
	}
	if s.cfg.Service.LiveFeed {
		s.hub = handlers.NewLiveHub(s.obs, s.log)
		rcfg.OnSample = s.hub.Broadcast
	}
	s.recorder = workers.NewTrendRecorder(rcfg)
	return nil
}

// restoreAlgorithmStates warms the EWMA/CUSUM chains: the embedded
// store first, then the Redis mirror, then the operational store.
func (s *service) restoreAlgorithmStates(ctx context.Context) {
	states, err := s.states.LoadAlgorithmStates()
	if err != nil {
		s.log.Warn("Failed to read algorithm state from the state database", "error", err)
	}
	if len(states) == 0 && s.redis != nil {
		states, err = s.redis.LoadAlgorithmStates(ctx)
		if err != nil {
			s.log.Warn("Failed to read algorithm state from Redis", "error", err)
		}
	}
	if len(states) == 0 && s.store != nil {
		states, err = s.store.LoadAlgorithmStates(ctx)
		if err != nil {
			s.log.Warn("Failed to read algorithm state from the operational store", "error", err)
		}
	}
	if len(states) > 0 {
		s.trends.Restore(states)
		s.log.Info("Restored algorithm state", "chains", len(states))
	}
}

// initWatcher starts config hot-reload when a config file exists.
func (s *service) initWatcher() {
	path, ok := config.SourcePath()
	if !ok {
		return
	}
	w, err := config.NewWatcher(path, s.onConfigReload)
	if err != nil {
		s.log.Warn("Config watcher disabled", "error", err)
		return
	}
	s.watcher = w
}

// onConfigReload reacts to a rewritten config file. Connection and
// state settings need a restart; the generated payloads are purged so
// the next request reflects anything the handlers read live.
func (s *service) onConfigReload(next config.Settings) {
	s.log.Info("Config file reloaded; connection settings apply on restart",
		"rate_rps", next.Service.RateRPS,
		"dashboard_ttl_s", next.Redis.DashboardTTLSeconds,
		"actions_ttl_s", next.Redis.ActionsTTLSeconds)
	if s.respCache != nil {
		s.respCache.Purge()
	}
}

// initRouter builds the Gin engine and registers the API surface.
func (s *service) initRouter() {
	s.respCache = cache.New()

	deps := &handlers.Deps{
		Settings:  &s.cfg,
		Fleet:     s.loop,
		Generator: s.agg,
		Cache:     s.respCache,
		Recorder:  s.recorder,
		Gate:      s.gate,
		Ranges:    datatypes.DefaultRanges(),
		DEF:       risk.DefaultDEFParams(),
		Live:      s.hub,
		Obs:       s.obs,
		Log:       s.log,
		Started:   s.started,
	}
	if s.redis != nil {
		deps.Mirror = s.redis
	}
	if s.store != nil {
		deps.History = s.store
	}

	limiter := middleware.NewRateLimiter(s.cfg.Service.RateRPS, s.cfg.Service.RateBurst)

	s.router = gin.Default()
	routes.SetupRoutes(s.router, deps, limiter)
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter over gRPC to the configured
// collector. An empty endpoint disables tracing; the otelgin
// middleware then records no-op spans.
//
// # Outputs
//
//   - func(context.Context): cleanup to call on shutdown
//   - error: non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses an insecure gRPC connection (internal networks only)
func (s *service) initTracer() (func(context.Context), error) {
	if s.cfg.Tracing.Endpoint == "" {
		return nil, nil
	}
	ctx := context.Background()

	conn, err := grpc.NewClient(s.cfg.Tracing.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", s.cfg.Service.Name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			s.log.Error("Failed to shutdown the OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

// =============================================================================
// Extension bridging
// =============================================================================

// notifyRefuel forwards a finalized refuel to the notifier and the
// audit log. Called from the cycle goroutine; both extension points
// enqueue and return.
func (s *service) notifyRefuel(ev datatypes.RefuelEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if s.opts.Notifier != nil {
		_ = s.opts.Notifier.Notify(ctx, extensions.FleetAlert{
			Kind:     "refuel",
			TruckID:  ev.TruckID,
			Severity: "LOW",
			Title:    fmt.Sprintf("Refuel detected on %s", ev.TruckID),
			Detail: fmt.Sprintf("%.1f gal added (%.1f%% to %.1f%%, %s)",
				ev.GallonsAdded, ev.BeforePct, ev.AfterPct, ev.Class),
			RaisedAt: ev.EndTime,
			Metadata: map[string]any{
				"gallons_added": ev.GallonsAdded,
				"class":         string(ev.Class),
			},
		})
	}
	s.audit(ctx, "fuel.refuel", ev.TruckID, map[string]any{
		"gallons":        ev.GallonsAdded,
		"percent_before": ev.BeforePct,
		"percent_after":  ev.AfterPct,
		"class":          string(ev.Class),
		"source":         string(ev.Source),
	})
}

// notifyDrop forwards a suspected or confirmed theft. Sensor-noise
// drops never reach this path.
func (s *service) notifyDrop(drop estimator.FuelDrop) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	severity, event := "HIGH", "fuel.theft_suspected"
	if drop.Class == estimator.DropConfirmedTheft {
		severity, event = "CRITICAL", "fuel.theft_confirmed"
	}

	if s.opts.Notifier != nil {
		_ = s.opts.Notifier.Notify(ctx, extensions.FleetAlert{
			Kind:     "theft",
			TruckID:  drop.TruckID,
			Severity: severity,
			Title:    fmt.Sprintf("Abnormal fuel drop on %s", drop.TruckID),
			Detail: fmt.Sprintf("Level fell %.1f%% to %.1f%% (%s)",
				drop.FromPct, drop.ToPct, drop.Class),
			RaisedAt: drop.DetectedAt,
			Metadata: map[string]any{
				"from_pct": drop.FromPct,
				"to_pct":   drop.ToPct,
				"class":    string(drop.Class),
			},
		})
	}
	s.audit(ctx, event, drop.TruckID, map[string]any{
		"percent_before": drop.FromPct,
		"percent_after":  drop.ToPct,
	})
}

// audit records one compliance event; failures are the sink's problem.
func (s *service) audit(ctx context.Context, eventType, truckID string, meta map[string]any) {
	if s.opts.AuditLogger == nil {
		return
	}
	_ = s.opts.AuditLogger.Record(ctx, extensions.AuditEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		TruckID:   truckID,
		Outcome:   "success",
		Metadata:  meta,
	})
}

// =============================================================================
// Teardown
// =============================================================================

// cleanup releases every resource the service holds. Called when Run
// exits or when New fails partway through wiring.
func (s *service) cleanup() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.log.Warn("Config watcher stop error", "error", err)
		}
		s.watcher = nil
	}
	if s.gc != nil {
		s.gc.Stop()
		s.gc = nil
	}
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			s.log.Warn("Telemetry reader close error", "error", err)
		}
		s.reader = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn("Operational store close error", "error", err)
		}
		s.store = nil
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warn("Redis close error", "error", err)
		}
		s.redis = nil
	}
	if s.influx != nil {
		s.influx.Close()
		s.influx = nil
	}
	if s.stateDB != nil {
		if err := s.stateDB.Close(); err != nil {
			s.log.Warn("State database close error", "error", err)
		}
		s.stateDB = nil
		s.states = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
	if s.vault != nil {
		s.vault.Purge()
		s.vault = nil
	}
}

// trendPointFrom collapses one generated payload into a fleet-health
// sample.
func trendPointFrom(resp *datatypes.DashboardResponse) datatypes.TrendPoint {
	return datatypes.TrendPoint{
		Timestamp:     resp.GeneratedAt,
		HealthScore:   float64(resp.FleetHealth.Score),
		TotalActions:  resp.Urgency.Total,
		CriticalCount: resp.Urgency.Critical,
		HighCount:     resp.Urgency.High,
		MediumCount:   resp.Urgency.Medium,
		LowCount:      resp.Urgency.Low,
	}
}
