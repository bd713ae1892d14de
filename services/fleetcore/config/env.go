// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file maps environment variables onto the settings tree.
package config

import (
	"os"
	"strconv"
)

// applyEnv overlays environment variables on s. Env wins over the
// YAML file for anything it names.
//
// Recognized variables:
//
//   - WIALON_DB_HOST / WIALON_DB_PORT / WIALON_DB_USER / WIALON_DB_NAME:
//     upstream telematics MySQL (password via WIALON_DB_PASS, held by
//     the secret vault, see secrets.go)
//   - FLEET_DB_HOST / FLEET_DB_PORT / FLEET_DB_USER / FLEET_DB_NAME:
//     operational MySQL override; unset means reuse the wialon
//     connection
//   - REDIS_URL: optional hot-state mirror
//   - FLEETCORE_PORT / FLEETCORE_HOST: HTTP bind
//   - FLEETCORE_STATE_DIR: embedded state store directory
//   - FLEETCORE_POLL_SECONDS: ingestion cadence
//   - INFLUXDB_URL / INFLUXDB_TOKEN / INFLUXDB_ORG / INFLUXDB_BUCKET:
//     optional metrics mirror
//   - OTEL_EXPORTER_OTLP_ENDPOINT: trace collector
func applyEnv(s *Settings) {
	s.Service.Host = getEnvString("FLEETCORE_HOST", s.Service.Host)
	s.Service.Port = getEnvInt("FLEETCORE_PORT", s.Service.Port)

	s.Wialon.Host = getEnvString("WIALON_DB_HOST", s.Wialon.Host)
	s.Wialon.Port = getEnvInt("WIALON_DB_PORT", s.Wialon.Port)
	s.Wialon.User = getEnvString("WIALON_DB_USER", s.Wialon.User)
	s.Wialon.Name = getEnvString("WIALON_DB_NAME", s.Wialon.Name)

	s.Fleet.Host = getEnvString("FLEET_DB_HOST", s.Fleet.Host)
	s.Fleet.Port = getEnvInt("FLEET_DB_PORT", s.Fleet.Port)
	s.Fleet.User = getEnvString("FLEET_DB_USER", s.Fleet.User)
	s.Fleet.Name = getEnvString("FLEET_DB_NAME", s.Fleet.Name)

	s.Redis.URL = getEnvString("REDIS_URL", s.Redis.URL)

	s.State.Dir = getEnvString("FLEETCORE_STATE_DIR", s.State.Dir)
	s.Poller.IntervalSeconds = getEnvInt("FLEETCORE_POLL_SECONDS", s.Poller.IntervalSeconds)

	s.Influx.URL = getEnvString("INFLUXDB_URL", s.Influx.URL)
	s.Influx.Token = getEnvString("INFLUXDB_TOKEN", s.Influx.Token)
	s.Influx.Org = getEnvString("INFLUXDB_ORG", s.Influx.Org)
	s.Influx.Bucket = getEnvString("INFLUXDB_BUCKET", s.Influx.Bucket)

	s.Tracing.Endpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", s.Tracing.Endpoint)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
