// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command fleetcore starts the fleet fuel-telemetry pipeline and the
// command-center HTTP API.
//
// Configuration comes from fleetcore.yaml (see config.Load for the
// search order) with FLEETCORE_* environment overrides. Secrets never
// live in the file:
//
//   - WIALON_DB_PASS: upstream telematics database password
//   - FLEET_DB_PASS: operational store password
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//
// # Usage
//
//	# Build
//	go build -o fleetcore ./cmd/fleetcore
//
//	# Run
//	./fleetcore
//
// The process exits 0 on a signaled shutdown and non-zero when the
// tank registry or the operational store cannot be reached at startup.
package main

import (
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/AleutianAI/FleetCore/services/fleetcore"
	"github.com/AleutianAI/FleetCore/services/fleetcore/config"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	settings, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.Info("Starting fleetcore",
		"version", settings.Service.Version,
		"port", settings.Service.Port,
		"base_path", settings.Service.BasePath,
		"poll_interval_s", settings.Poller.IntervalSeconds,
	)

	// Create the service with default (no-op) extension options.
	// Enterprise builds pass custom ServiceOptions here.
	svc, err := fleetcore.New(settings, nil)
	if err != nil {
		log.Fatalf("Failed to create fleetcore: %v", err)
	}

	// Run blocks until a shutdown signal.
	if err := svc.Run(); err != nil {
		log.Fatalf("Fleetcore error: %v", err)
	}
}

// logLevel maps LOG_LEVEL to a slog level, defaulting to info.
func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
