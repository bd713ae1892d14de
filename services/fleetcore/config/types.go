// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads FleetCore settings from defaults, an optional
// YAML file, environment variables, and runtime rows from the
// command_center_config table, in that order of precedence.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Settings is the full FleetCore configuration tree.
type Settings struct {
	Service   ServiceSettings   `yaml:"service"`
	Wialon    DBSettings        `yaml:"wialon"`    // upstream telematics MySQL (read-only)
	Fleet     DBSettings        `yaml:"fleet"`     // operational MySQL (falls back to wialon)
	Redis     RedisSettings     `yaml:"redis"`
	State     StateSettings     `yaml:"state"`
	Influx    InfluxSettings    `yaml:"influx"`
	Poller    PollerSettings    `yaml:"poller"`
	Analytics AnalyticsSettings `yaml:"analytics"`
	Tracing   TracingSettings   `yaml:"tracing"`

	// Trucks carries per-truck additions and overrides applied on top
	// of the upstream units_map rows: carrier assignment, refuel
	// factor, capacity corrections, or whole trucks not yet mapped
	// upstream.
	Trucks []TruckOverride `yaml:"trucks"`
}

// TruckOverride adjusts or adds one registry entry.
type TruckOverride struct {
	TruckID         string  `yaml:"truck_id" validate:"required"`
	UnitID          int     `yaml:"unit_id"`          // required only for additions
	CapacityGallons float64 `yaml:"capacity_gallons"` // 0 keeps the upstream value
	CarrierID       string  `yaml:"carrier_id"`
	RefuelFactor    float64 `yaml:"refuel_factor" validate:"gte=0"`
}

// ServiceSettings covers the HTTP surface and identity.
type ServiceSettings struct {
	Name     string `yaml:"name"`               // e.g. fleetcore
	Host     string `yaml:"host"`               // e.g. 0.0.0.0
	Port     int    `yaml:"port" validate:"gt=0,lte=65535"` // e.g. 12410
	BasePath string `yaml:"base_path"`          // e.g. /api/command-center
	Version  string `yaml:"version"`            // reported in responses

	// RateRPS / RateBurst bound the mutating endpoints (detect,
	// trend record). Zero disables the limiter.
	RateRPS   float64 `yaml:"rate_rps" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`

	// LiveFeed enables the websocket fleet feed under the base path.
	LiveFeed bool `yaml:"live_feed"`
}

// DBSettings describes one MySQL connection. Password is carried
// separately by the secret vault, never in this struct.
type DBSettings struct {
	Host string `yaml:"host"` // e.g. wialon-db.internal
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
	User string `yaml:"user"`
	Name string `yaml:"name"` // database/schema name

	// ConnectTimeoutSeconds bounds each dial attempt.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds" validate:"gte=0"`

	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int `yaml:"max_idle_conns" validate:"gte=0"`
}

// Configured reports whether this connection has enough fields to dial.
func (d DBSettings) Configured() bool { return d.Host != "" && d.Name != "" }

// RedisSettings covers the optional hot-state mirror and cache shadow.
type RedisSettings struct {
	// URL is a redis:// connection string. Empty disables Redis.
	URL string `yaml:"url"`

	DashboardTTLSeconds int `yaml:"dashboard_ttl_seconds" validate:"gte=0"` // e.g. 30
	ActionsTTLSeconds   int `yaml:"actions_ttl_seconds" validate:"gte=0"`   // e.g. 15
}

// StateSettings covers the embedded state store.
type StateSettings struct {
	// Dir holds the Badger database. Supports a leading "~".
	Dir string `yaml:"dir"` // e.g. ~/.fleetcore/state

	// GCIntervalMinutes schedules value-log garbage collection.
	GCIntervalMinutes int `yaml:"gc_interval_minutes" validate:"gte=0"`

	// InMemory runs the store without disk, used by tests.
	InMemory bool `yaml:"in_memory"`
}

// InfluxSettings covers the optional time-series mirror of fuel
// metrics. Disabled unless URL and Token are both set.
type InfluxSettings struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Enabled reports whether the mirror should start.
func (i InfluxSettings) Enabled() bool { return i.URL != "" && i.Token != "" }

// PollerSettings tunes the telemetry ingestion loop.
type PollerSettings struct {
	IntervalSeconds int `yaml:"interval_seconds" validate:"gt=0"` // e.g. 30

	// MaxAgeSeconds bounds how old a reading may be to appear in a
	// snapshot at all.
	MaxAgeSeconds int `yaml:"max_age_seconds" validate:"gt=0"` // e.g. 3600

	// RowsPerParam caps rows fetched per (unit, parameter) in the
	// windowed batch query.
	RowsPerParam int `yaml:"rows_per_param" validate:"gt=0"` // e.g. 3

	// ReadTimeoutSeconds bounds each upstream query.
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds" validate:"gt=0"` // e.g. 30

	// Freshness budgets per parameter family, in minutes, relative to
	// the unit's newest reading.
	FuelFreshnessMinutes    int `yaml:"fuel_freshness_minutes" validate:"gt=0"`    // e.g. 240
	DefaultFreshnessMinutes int `yaml:"default_freshness_minutes" validate:"gt=0"` // e.g. 15

	// FuelLookbackHours spans the targeted secondary query used when
	// the primary window had no fuel level at all.
	FuelLookbackHours int `yaml:"fuel_lookback_hours" validate:"gt=0"` // e.g. 12

	// Retry/backoff policy for upstream connection establishment.
	BackoffBaseSeconds int `yaml:"backoff_base_seconds" validate:"gt=0"` // e.g. 2
	BackoffMaxSeconds  int `yaml:"backoff_max_seconds" validate:"gt=0"`  // e.g. 60
	MaxAttempts        int `yaml:"max_attempts" validate:"gt=0"`         // e.g. 5

	// Workers fan out per-truck processing inside one cycle.
	Workers int `yaml:"workers" validate:"gt=0"`
}

// AnalyticsSettings exposes the tunable analytics knobs. The
// statistical defaults here are deliberate: chosen against recorded
// fleet data, only override with evidence.
type AnalyticsSettings struct {
	EWMAAlpha      float64 `yaml:"ewma_alpha" validate:"gt=0,lte=1"`  // e.g. 0.3
	CUSUMThreshold float64 `yaml:"cusum_threshold" validate:"gt=0"`   // e.g. 5.0
	TrendRingMax   int     `yaml:"trend_ring_max" validate:"gt=0"`    // e.g. 1000

	// TrendRecordMinutes is the cadence of the fleet trend recorder.
	TrendRecordMinutes int `yaml:"trend_record_minutes" validate:"gt=0"`

	// StateFlushSeconds is the cadence of warm-state persistence.
	StateFlushSeconds int `yaml:"state_flush_seconds" validate:"gt=0"`
}

// TracingSettings covers the OpenTelemetry exporter.
type TracingSettings struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables
	// trace export.
	Endpoint string `yaml:"endpoint"` // e.g. otel-collector:4317
}

// DefaultSettings returns the tree every deployment starts from.
func DefaultSettings() Settings {
	return Settings{
		Service: ServiceSettings{
			Name:      "fleetcore",
			Host:      "0.0.0.0",
			Port:      12410,
			BasePath:  "/api/command-center",
			Version:   "2.1.0",
			RateRPS:   5,
			RateBurst: 10,
			LiveFeed:  true,
		},
		Wialon: DBSettings{
			Port:                  3306,
			ConnectTimeoutSeconds: 10,
			MaxOpenConns:          8,
			MaxIdleConns:          2,
		},
		Fleet: DBSettings{
			Port:                  3306,
			ConnectTimeoutSeconds: 10,
			MaxOpenConns:          8,
			MaxIdleConns:          2,
		},
		Redis: RedisSettings{
			DashboardTTLSeconds: 30,
			ActionsTTLSeconds:   15,
		},
		State: StateSettings{
			Dir:               "~/.fleetcore/state",
			GCIntervalMinutes: 10,
		},
		Poller: PollerSettings{
			IntervalSeconds:         30,
			MaxAgeSeconds:           3600,
			RowsPerParam:            3,
			ReadTimeoutSeconds:      30,
			FuelFreshnessMinutes:    240,
			DefaultFreshnessMinutes: 15,
			FuelLookbackHours:       12,
			BackoffBaseSeconds:      2,
			BackoffMaxSeconds:       60,
			MaxAttempts:             5,
			Workers:                 8,
		},
		Analytics: AnalyticsSettings{
			EWMAAlpha:          0.3,
			CUSUMThreshold:     5.0,
			TrendRingMax:       1000,
			TrendRecordMinutes: 15,
			StateFlushSeconds:  60,
		},
		Tracing: TracingSettings{
			Endpoint: "localhost:4317",
		},
	}
}

// Validate checks the tree with the shared struct validator.
func (s *Settings) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if s.Poller.BackoffMaxSeconds < s.Poller.BackoffBaseSeconds {
		return fmt.Errorf("invalid configuration: backoff_max_seconds %d below backoff_base_seconds %d",
			s.Poller.BackoffMaxSeconds, s.Poller.BackoffBaseSeconds)
	}
	return nil
}

// FleetDB returns the operational connection, falling back to the
// upstream connection when no separate one is configured.
func (s *Settings) FleetDB() DBSettings {
	if s.Fleet.Configured() {
		return s.Fleet
	}
	fleet := s.Wialon
	fleet.MaxOpenConns = s.Fleet.MaxOpenConns
	fleet.MaxIdleConns = s.Fleet.MaxIdleConns
	if fleet.MaxOpenConns == 0 {
		fleet.MaxOpenConns = s.Wialon.MaxOpenConns
	}
	if fleet.MaxIdleConns == 0 {
		fleet.MaxIdleConns = s.Wialon.MaxIdleConns
	}
	return fleet
}
