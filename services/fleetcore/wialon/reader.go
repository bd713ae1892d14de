// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package wialon reads raw telemetry from the upstream telematics
// MySQL database (read-only) and reconciles it into at most one
// SensorSnapshot per truck per poll cycle.
package wialon

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/config"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/registry"
)

// connMaxLifetime forces a reconnect of pooled upstream connections.
// The telematics provider silently drops sessions older than this.
const connMaxLifetime = time.Hour

// bulkFetchCap bounds the fallback query on engines without window
// functions.
const bulkFetchCap = 5000

// =============================================================================
// Reader
// =============================================================================

// Reader polls the upstream sensors table.
//
// # Description
//
// Each ReadAllTrucks call issues one batched query for every
// registered unit, restricted to the parameter whitelist, and folds
// the rows into per-truck snapshots. Freshness is judged relative to
// each unit's newest reading: fuel level may be up to 4 h older, any
// other parameter up to 15 min. Units whose primary window carried no
// fuel level at all get a targeted 12 h lookback for fuel only.
//
// # Failure Semantics
//
// On connection loss or query error the reader drops its handle,
// returns an empty slice with the error, and lets the next cycle
// redial. Dialing uses exponential backoff (base 2 s, max 60 s,
// bounded attempts) and a short connect timeout.
//
// # Thread Safety
//
// Safe for concurrent use; the connection handle is guarded.
type Reader struct {
	dbcfg  config.DBSettings
	poller config.PollerSettings
	vault  *config.Vault
	reg    *registry.Registry
	log    *logging.Logger
	ranges datatypes.RangeSet

	mu          sync.Mutex
	conn        *gorm.DB
	connectedAt time.Time

	// windowed tracks whether the engine accepted the row-number
	// query; cleared on first syntax failure so every later cycle
	// goes straight to the bulk fallback.
	windowed bool
}

// ReaderConfig wires the reader's collaborators.
type ReaderConfig struct {
	DB       config.DBSettings
	Poller   config.PollerSettings
	Vault    *config.Vault // nil means passwordless upstream
	Registry *registry.Registry
	Logger   *logging.Logger

	// Ranges overrides the ingest validity table; nil uses defaults.
	Ranges datatypes.RangeSet

	// Conn injects an existing connection; tests pass a
	// sqlmock-backed handle. When set, the reader never dials.
	Conn *gorm.DB
}

// NewReader creates a reader for the configured upstream database.
// Registry may be nil at construction: the service reads the units
// map first, builds the registry from it, and calls Bind before the
// poll loop starts.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Ranges == nil {
		cfg.Ranges = datatypes.DefaultRanges()
	}
	if cfg.Conn == nil && !cfg.DB.Configured() {
		return nil, fmt.Errorf("wialon reader requires an upstream host and database name")
	}

	return &Reader{
		dbcfg:    cfg.DB,
		poller:   cfg.Poller,
		vault:    cfg.Vault,
		reg:      cfg.Registry,
		log:      cfg.Logger,
		ranges:   cfg.Ranges,
		conn:     cfg.Conn,
		windowed: true,
	}, nil
}

// sensorRow mirrors one row of the sensors table.
type sensorRow struct {
	Unit          int
	P             string
	Value         sql.NullString
	M             int64 // epoch seconds
	FromLatitude  sql.NullFloat64
	FromLongitude sql.NullFloat64
}

// unitsMapRow mirrors one row of the units_map table.
type unitsMapRow struct {
	BeyondID     sql.NullString  `gorm:"column:beyondId"`
	Unit         sql.NullInt64   `gorm:"column:unit"`
	FuelCapacity sql.NullFloat64 `gorm:"column:fuel_capacity"`
}

// =============================================================================
// Public API
// =============================================================================

// Bind attaches the tank registry. Must be called before the first
// ReadAllTrucks; the field is not guarded after the poll loop starts.
func (r *Reader) Bind(reg *registry.Registry) {
	r.reg = reg
}

// LoadUnitsMap reads the upstream truck mapping used to seed the tank
// registry. Rows missing an id or a positive capacity are skipped with
// a warning rather than failing the whole fleet load.
func (r *Reader) LoadUnitsMap(ctx context.Context) ([]datatypes.TruckConfig, error) {
	db, err := r.ensureConnection(ctx)
	if err != nil {
		return nil, err
	}

	qctx, cancel := r.readContext(ctx)
	defer cancel()

	var rows []unitsMapRow
	if err := db.WithContext(qctx).
		Raw(`SELECT beyondId, unit, fuel_capacity FROM units_map`).
		Scan(&rows).Error; err != nil {
		r.dropConnection()
		return nil, fmt.Errorf("failed to read units_map: %w", err)
	}

	configs := make([]datatypes.TruckConfig, 0, len(rows))
	for _, row := range rows {
		if !row.BeyondID.Valid || !row.Unit.Valid || row.Unit.Int64 <= 0 {
			r.log.Warn("Skipping units_map row with missing ids",
				"beyond_id", row.BeyondID.String,
				"unit", row.Unit.Int64)
			continue
		}
		if !row.FuelCapacity.Valid || row.FuelCapacity.Float64 <= 0 {
			r.log.Warn("Skipping units_map row without a usable tank capacity",
				"truck_id", row.BeyondID.String,
				"unit", row.Unit.Int64)
			continue
		}
		configs = append(configs, datatypes.TruckConfig{
			TruckID:         row.BeyondID.String,
			UnitID:          int(row.Unit.Int64),
			CapacityGallons: row.FuelCapacity.Float64,
		})
	}
	return configs, nil
}

// ReadAllTrucks performs one poll and returns at most one snapshot per
// registered truck. An empty slice with a non-nil error means the
// cycle should be skipped; the next cycle redials.
func (r *Reader) ReadAllTrucks(ctx context.Context) ([]datatypes.SensorSnapshot, error) {
	if r.reg == nil {
		return nil, fmt.Errorf("no tank registry bound")
	}
	db, err := r.ensureConnection(ctx)
	if err != nil {
		return nil, err
	}

	units := r.reg.UnitIDs()
	if len(units) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	cutoff := now.Unix() - int64(r.poller.MaxAgeSeconds)

	rows, err := r.fetchRecent(ctx, db, units, cutoff)
	if err != nil {
		r.dropConnection()
		return nil, err
	}

	snapshots, missingFuel := r.buildSnapshots(rows)

	if len(missingFuel) > 0 {
		if err := r.fillMissingFuel(ctx, db, snapshots, missingFuel, now); err != nil {
			// Fuel backfill is best-effort; the snapshots stand.
			r.log.Warn("Secondary fuel query failed",
				"units", len(missingFuel),
				"error", err)
		}
	}

	out := make([]datatypes.SensorSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TruckID < out[j].TruckID })

	return out, nil
}

// Close releases the upstream connection.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

// =============================================================================
// Queries
// =============================================================================

// fetchRecent loads the newest whitelisted rows for all units. It
// prefers the windowed query (caps transfer per parameter) and falls
// back to an ordered bulk fetch on engines without window functions.
func (r *Reader) fetchRecent(ctx context.Context, db *gorm.DB, units []int, cutoff int64) ([]sensorRow, error) {
	qctx, cancel := r.readContext(ctx)
	defer cancel()

	r.mu.Lock()
	tryWindowed := r.windowed
	r.mu.Unlock()

	var rows []sensorRow
	if tryWindowed {
		err := db.WithContext(qctx).Raw(`
			SELECT unit, p, value, m, from_latitude, from_longitude
			FROM (
				SELECT unit, p, value, m, from_latitude, from_longitude,
				       ROW_NUMBER() OVER (PARTITION BY unit, p ORDER BY m DESC) AS rn
				FROM sensors
				WHERE unit IN ? AND p IN ? AND m >= ?
			) ranked
			WHERE rn <= ?`,
			units, Params, cutoff, r.poller.RowsPerParam,
		).Scan(&rows).Error
		if err == nil {
			return rows, nil
		}

		r.mu.Lock()
		r.windowed = false
		r.mu.Unlock()
		r.log.Warn("Windowed sensor query failed, switching to bulk fallback",
			"error", err)
		rows = rows[:0]
	}

	err := db.WithContext(qctx).Raw(`
		SELECT unit, p, value, m, from_latitude, from_longitude
		FROM sensors
		WHERE unit IN ? AND p IN ? AND m >= ?
		ORDER BY m DESC
		LIMIT ?`,
		units, Params, cutoff, bulkFetchCap,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read sensors: %w", err)
	}
	return rows, nil
}

// fillMissingFuel runs the targeted fuel-only lookback for units whose
// primary window had no fuel level.
func (r *Reader) fillMissingFuel(ctx context.Context, db *gorm.DB, snapshots map[int]*datatypes.SensorSnapshot, units []int, now time.Time) error {
	qctx, cancel := r.readContext(ctx)
	defer cancel()

	cutoff := now.Unix() - int64(r.poller.FuelLookbackHours)*3600

	var rows []sensorRow
	if err := db.WithContext(qctx).Raw(`
		SELECT unit, p, value, m, from_latitude, from_longitude
		FROM sensors
		WHERE unit IN ? AND p = ? AND m >= ?
		ORDER BY m DESC
		LIMIT ?`,
		units, ParamFuelLevel, cutoff, bulkFetchCap,
	).Scan(&rows).Error; err != nil {
		return err
	}

	// Rows arrive newest-first; the first hit per unit wins.
	for _, row := range rows {
		s, ok := snapshots[row.Unit]
		if !ok || s.FuelLvl != nil || !row.Value.Valid {
			continue
		}
		assign(s, ParamFuelLevel, row.Value.String, r.ranges)
	}
	return nil
}

// buildSnapshots folds raw rows into per-truck snapshots, applying the
// relative freshness budgets. Returns the snapshots keyed by unit and
// the units still missing a fuel level.
func (r *Reader) buildSnapshots(rows []sensorRow) (map[int]*datatypes.SensorSnapshot, []int) {
	type bestRow struct {
		row sensorRow
		set bool
	}
	type unitAgg struct {
		latest   int64
		perParam map[string]bestRow
		lat, lon float64
		fixEpoch int64
		hasFix   bool
	}

	aggs := make(map[int]*unitAgg)
	for _, row := range rows {
		agg := aggs[row.Unit]
		if agg == nil {
			agg = &unitAgg{perParam: make(map[string]bestRow, len(Params))}
			aggs[row.Unit] = agg
		}
		if row.M > agg.latest {
			agg.latest = row.M
		}
		if prev := agg.perParam[row.P]; !prev.set || row.M > prev.row.M {
			agg.perParam[row.P] = bestRow{row: row, set: true}
		}
		if row.FromLatitude.Valid && row.FromLongitude.Valid && row.M >= agg.fixEpoch {
			lat, lon := row.FromLatitude.Float64, row.FromLongitude.Float64
			if validFix(lat, lon) {
				agg.lat, agg.lon = lat, lon
				agg.fixEpoch = row.M
				agg.hasFix = true
			}
		}
	}

	fuelBudget := int64(r.poller.FuelFreshnessMinutes) * 60
	defaultBudget := int64(r.poller.DefaultFreshnessMinutes) * 60

	snapshots := make(map[int]*datatypes.SensorSnapshot, len(aggs))
	var missingFuel []int

	for unit, agg := range aggs {
		cfg, known := r.reg.ByUnitID(unit)
		if !known {
			r.log.Debug("Ignoring rows for unmapped unit",
				"unit", unit)
			continue
		}

		s := &datatypes.SensorSnapshot{
			TruckID:      cfg.TruckID,
			UnitID:       unit,
			Timestamp:    time.Unix(agg.latest, 0).UTC(),
			EpochSeconds: agg.latest,
		}

		for param, best := range agg.perParam {
			if !best.set || !best.row.Value.Valid {
				continue
			}
			budget := defaultBudget
			if param == ParamFuelLevel {
				budget = fuelBudget
			}
			if agg.latest-best.row.M > budget {
				continue
			}
			assign(s, param, best.row.Value.String, r.ranges)
		}

		if agg.hasFix {
			s.Latitude, s.Longitude = datatypes.Float(agg.lat), datatypes.Float(agg.lon)
		}

		snapshots[unit] = s
		if s.FuelLvl == nil {
			missingFuel = append(missingFuel, unit)
		}
	}
	return snapshots, missingFuel
}

// validFix rejects null-island and out-of-bounds coordinates.
func validFix(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// =============================================================================
// Connection Management
// =============================================================================

// ensureConnection returns a live handle, recycling connections older
// than connMaxLifetime and redialing after ping failures.
func (r *Reader) ensureConnection(ctx context.Context) (*gorm.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		if time.Since(r.connectedAt) > connMaxLifetime && !r.connectedAt.IsZero() {
			r.log.Info("Recycling upstream connection",
				"age", time.Since(r.connectedAt).String())
			_ = r.closeLocked()
		} else if err := r.pingLocked(ctx); err != nil {
			r.log.Warn("Upstream ping failed, redialing",
				"error", err)
			_ = r.closeLocked()
		} else {
			return r.conn, nil
		}
	}

	conn, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	r.connectedAt = time.Now()
	return r.conn, nil
}

// dial opens the upstream connection with exponential backoff.
func (r *Reader) dial(ctx context.Context) (*gorm.DB, error) {
	var conn *gorm.DB

	operation := func() error {
		var dsnErr error
		dsn := ""
		withSecret := func(secret string) error {
			dsn = mysqlDSN(r.dbcfg, secret, r.poller.ReadTimeoutSeconds)
			return nil
		}
		if r.vault != nil {
			dsnErr = r.vault.WithSecret(config.SecretWialonDBPass, withSecret)
		} else {
			dsnErr = withSecret("")
		}
		if dsnErr != nil {
			return backoff.Permanent(dsnErr)
		}

		db, err := gorm.Open(gmysql.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetConnMaxLifetime(connMaxLifetime)
		sqlDB.SetMaxOpenConns(r.dbcfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(r.dbcfg.MaxIdleConns)

		pingCtx, cancel := context.WithTimeout(ctx, time.Duration(r.dbcfg.ConnectTimeoutSeconds)*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			_ = sqlDB.Close()
			return err
		}

		conn = db
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(r.poller.BackoffBaseSeconds) * time.Second
	policy.MaxInterval = time.Duration(r.poller.BackoffMaxSeconds) * time.Second
	policy.MaxElapsedTime = 0 // bounded by attempt count below

	attempts := uint64(1)
	if r.poller.MaxAttempts > 1 {
		attempts = uint64(r.poller.MaxAttempts)
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, attempts-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the upstream database: %w", err)
	}

	r.log.Info("Connected to upstream telematics database",
		"host", r.dbcfg.Host,
		"database", r.dbcfg.Name)
	return conn, nil
}

// dropConnection discards the handle after a query failure so the
// next cycle starts from a clean dial.
func (r *Reader) dropConnection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.closeLocked()
}

func (r *Reader) closeLocked() error {
	if r.conn == nil {
		return nil
	}
	sqlDB, err := r.conn.DB()
	r.conn = nil
	r.connectedAt = time.Time{}
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Reader) pingLocked(ctx context.Context) error {
	sqlDB, err := r.conn.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(r.dbcfg.ConnectTimeoutSeconds)*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// readContext bounds one upstream query.
func (r *Reader) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.poller.ReadTimeoutSeconds)*time.Second)
}

// mysqlDSN formats a go-sql-driver DSN. Passwords never touch logs.
func mysqlDSN(db config.DBSettings, password string, readTimeoutSeconds int) string {
	auth := db.User
	if password != "" {
		auth = fmt.Sprintf("%s:%s", db.User, password)
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&timeout=%ds&readTimeout=%ds",
		auth, db.Host, db.Port, db.Name, db.ConnectTimeoutSeconds, readTimeoutSeconds)
}
