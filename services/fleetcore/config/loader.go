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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file search when set.
const EnvConfigPath = "FLEETCORE_CONFIG"

// Load builds the effective settings: defaults, then the first YAML
// file found, then environment overrides. A missing file is not an
// error; a present but unreadable or invalid file is.
//
// Search order when FLEETCORE_CONFIG is unset:
//
//	./fleetcore.yaml
//	~/.fleetcore/fleetcore.yaml
//	/etc/fleetcore/fleetcore.yaml
func Load() (Settings, error) {
	// A .env next to the binary is a dev convenience; absence is fine.
	_ = godotenv.Load()

	s := DefaultSettings()

	path, explicit := configPath()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return Settings{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
			// fall through to env overrides
		default:
			return Settings{}, fmt.Errorf("failed to read the config file %s: %w", path, err)
		}
	}

	applyEnv(&s)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SourcePath reports the config file Load would read, if one exists.
// The service hands it to the fsnotify watcher.
func SourcePath() (string, bool) {
	p, _ := configPath()
	return p, p != ""
}

// configPath returns the file to load and whether the operator named
// it explicitly. An explicit path must exist; searched paths may not.
func configPath() (string, bool) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return ExpandPath(p), true
	}
	for _, p := range searchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, false
		}
	}
	return "", false
}

func searchPaths() []string {
	paths := []string{"fleetcore.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".fleetcore", "fleetcore.yaml"))
	}
	paths = append(paths, filepath.Join("/etc", "fleetcore", "fleetcore.yaml"))
	return paths
}

// WriteDefault writes a default config file, creating parent
// directories as needed. Used on first-run provisioning.
func WriteDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[1:])
}
