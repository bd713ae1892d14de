// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestWriteDefault verifies default config creation.
func TestWriteDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".fleetcore", "fleetcore.yaml")

	if err := WriteDefault(configPath); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if s.Service.Port != 12410 {
		t.Errorf("Service.Port = %d, want 12410", s.Service.Port)
	}
	if s.Analytics.EWMAAlpha != 0.3 {
		t.Errorf("Analytics.EWMAAlpha = %v, want 0.3", s.Analytics.EWMAAlpha)
	}
	if s.Poller.IntervalSeconds != 30 {
		t.Errorf("Poller.IntervalSeconds = %d, want 30", s.Poller.IntervalSeconds)
	}
}

// TestLoad_ExplicitFile verifies loading via FLEETCORE_CONFIG.
func TestLoad_ExplicitFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "fleetcore.yaml")

	content := []byte(`
service:
  port: 9999
poller:
  interval_seconds: 30
analytics:
  ewma_alpha: 0.5
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv(EnvConfigPath, configPath)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if s.Service.Port != 9999 {
		t.Errorf("Service.Port = %d, want 9999", s.Service.Port)
	}
	if s.Poller.IntervalSeconds != 30 {
		t.Errorf("Poller.IntervalSeconds = %d, want 30", s.Poller.IntervalSeconds)
	}
	if s.Analytics.EWMAAlpha != 0.5 {
		t.Errorf("Analytics.EWMAAlpha = %v, want 0.5", s.Analytics.EWMAAlpha)
	}
	// Untouched sections keep their defaults.
	if s.Analytics.CUSUMThreshold != 5.0 {
		t.Errorf("Analytics.CUSUMThreshold = %v, want default 5.0", s.Analytics.CUSUMThreshold)
	}
}

// TestLoad_ExplicitFileMissing verifies an explicit path must exist.
func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail when FLEETCORE_CONFIG points at a missing file")
	}
}

// TestLoad_EnvOverrides verifies environment variables win over the file.
func TestLoad_EnvOverrides(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "fleetcore.yaml")
	content := []byte(`
wialon:
  host: file-host
  name: wialon
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv(EnvConfigPath, configPath)
	t.Setenv("WIALON_DB_HOST", "env-host")
	t.Setenv("WIALON_DB_PORT", "3307")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if s.Wialon.Host != "env-host" {
		t.Errorf("Wialon.Host = %q, want env-host", s.Wialon.Host)
	}
	if s.Wialon.Port != 3307 {
		t.Errorf("Wialon.Port = %d, want 3307", s.Wialon.Port)
	}
	if s.Wialon.Name != "wialon" {
		t.Errorf("Wialon.Name = %q, want wialon (from file)", s.Wialon.Name)
	}
	if s.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("Redis.URL = %q", s.Redis.URL)
	}
}

// TestLoad_InvalidYAML verifies parse failures surface.
func TestLoad_InvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "fleetcore.yaml")
	if err := os.WriteFile(configPath, []byte("service: [not a map"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv(EnvConfigPath, configPath)

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail on invalid YAML")
	}
}

// TestSettings_Validate verifies the struct validator catches bad trees.
func TestSettings_Validate(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	s.Analytics.EWMAAlpha = 1.5
	if err := s.Validate(); err == nil {
		t.Error("alpha above 1 should fail validation")
	}

	s = DefaultSettings()
	s.Poller.BackoffMaxSeconds = 1
	if err := s.Validate(); err == nil {
		t.Error("backoff max below base should fail validation")
	}

	s = DefaultSettings()
	s.Service.Port = 0
	if err := s.Validate(); err == nil {
		t.Error("port 0 should fail validation")
	}
}

// TestSettings_FleetDB verifies the operational store fallback.
func TestSettings_FleetDB(t *testing.T) {
	s := DefaultSettings()
	s.Wialon.Host = "wialon-db"
	s.Wialon.User = "reader"
	s.Wialon.Name = "wialon"

	fleet := s.FleetDB()
	if fleet.Host != "wialon-db" || fleet.Name != "wialon" {
		t.Errorf("unconfigured fleet DB should reuse wialon: %+v", fleet)
	}

	s.Fleet.Host = "fleet-db"
	s.Fleet.User = "writer"
	s.Fleet.Name = "fleet"
	fleet = s.FleetDB()
	if fleet.Host != "fleet-db" || fleet.Name != "fleet" {
		t.Errorf("configured fleet DB should win: %+v", fleet)
	}
}

// TestExpandPath verifies tilde expansion.
func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory on this system")
	}

	if got := ExpandPath("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Errorf("ExpandPath(~/x/y) = %q", got)
	}
	if got := ExpandPath("~"); got != home {
		t.Errorf("ExpandPath(~) = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %q", got)
	}
}
