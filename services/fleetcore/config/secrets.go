// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the secret vault. Database passwords are read
// from the environment once at startup, sealed into memguard enclaves,
// and the plaintext environment variables are cleared. Secrets only
// exist in plaintext inside mlocked memory while a DSN is being built.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Constants
// =============================================================================

// Secret names recognized by the vault.
const (
	SecretWialonDBPass = "WIALON_DB_PASS"
	SecretFleetDBPass  = "FLEET_DB_PASS"
)

// MinMlockLimitKB is the minimum mlock limit required for sealed
// secrets, in kilobytes.
const MinMlockLimitKB = 64

// =============================================================================
// Package Variables
// =============================================================================

var (
	// memguardInitOnce ensures memguard initialization happens only once.
	memguardInitOnce sync.Once

	// mlockSufficient is set during initialization to indicate if secure memory is available.
	mlockSufficient bool

	// currentMlockLimitKB stores the current mlock limit for logging.
	currentMlockLimitKB int64
)

// =============================================================================
// Vault
// =============================================================================

// Vault holds sealed credentials for the lifetime of the process.
//
// # Description
//
// Each secret is stored as a memguard Enclave: encrypted at rest in
// process memory, decrypted into an mlocked buffer only inside
// WithSecret, and wiped as soon as the callback returns.
//
// # Thread Safety
//
// Safe for concurrent use after NewVault returns.
//
// # Limitations
//
//   - Secrets cannot be rotated without restarting the process
//   - On systems without sufficient mlock limits the vault refuses to
//     start unless FLEETCORE_INSECURE_MEMORY=true
//
// # Assumptions
//
//   - Secrets arrive via environment variables at process start
type Vault struct {
	mu       sync.RWMutex
	enclaves map[string]*memguard.Enclave
	insecure map[string]string // fallback storage, only with explicit opt-in
}

// NewVault seals the recognized secret environment variables and
// clears them from the process environment.
//
// # Outputs
//
//   - *Vault: ready for WithSecret calls
//   - error: non-nil when mlock limits are insufficient and insecure
//     mode was not requested
func NewVault() (*Vault, error) {
	initMemguard()

	v := &Vault{
		enclaves: make(map[string]*memguard.Enclave),
		insecure: make(map[string]string),
	}

	if !mlockSufficient && os.Getenv("FLEETCORE_INSECURE_MEMORY") != "true" {
		return nil, fmt.Errorf(
			"mlock limit insufficient: have %d KB, need %d KB. "+
				"Configure system limits or set FLEETCORE_INSECURE_MEMORY=true",
			currentMlockLimitKB, MinMlockLimitKB,
		)
	}

	for _, name := range []string{SecretWialonDBPass, SecretFleetDBPass} {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		v.seal(name, val)
		os.Unsetenv(name)
	}

	return v, nil
}

// seal stores one secret, choosing secure or fallback storage.
func (v *Vault) seal(name, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if mlockSufficient {
		v.enclaves[name] = memguard.NewEnclave([]byte(value))
		return
	}

	slog.Warn("SECURITY: Storing secret in insecure memory - data may be swapped to disk",
		"secret", name,
		"env_override", "FLEETCORE_INSECURE_MEMORY=true",
	)
	v.insecure[name] = value
}

// Has reports whether the named secret was provided.
func (v *Vault) Has(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, ok := v.enclaves[name]; ok {
		return true
	}
	_, ok := v.insecure[name]
	return ok
}

// WithSecret opens the named secret and passes the plaintext to fn.
// The decrypted buffer is destroyed when fn returns. A missing secret
// invokes fn with the empty string so DSN builders can treat
// passwordless databases uniformly.
//
// # Inputs
//
//   - name: one of the Secret* constants
//   - fn: receives the plaintext; must not retain it
//
// # Outputs
//
//   - error: the enclave open error or fn's error
func (v *Vault) WithSecret(name string, fn func(secret string) error) error {
	v.mu.RLock()
	enclave, sealed := v.enclaves[name]
	plain, unsealed := v.insecure[name]
	v.mu.RUnlock()

	if sealed {
		buf, err := enclave.Open()
		if err != nil {
			return fmt.Errorf("failed to open the enclave for %s: %w", name, err)
		}
		defer buf.Destroy()
		return fn(buf.String())
	}
	if unsealed {
		return fn(plain)
	}
	return fn("")
}

// Purge wipes all sealed secrets. Call during graceful shutdown.
func (v *Vault) Purge() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.enclaves = make(map[string]*memguard.Enclave)
	for k := range v.insecure {
		delete(v.insecure, k)
	}
	memguard.Purge()
	slog.Info("Purged all secure memory")
}

// =============================================================================
// Package Initialization Functions
// =============================================================================

// initMemguard initializes the memguard library and checks mlock limits.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		logMlockStatus()
	})
}

// checkMlockLimit checks if the system has sufficient mlock limits.
//
// # Outputs
//
//   - bool: true if limit is sufficient (>= MinMlockLimitKB)
//   - int64: current limit in kilobytes (-1 if unlimited)
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// logMlockStatus logs the current mlock status.
func logMlockStatus() {
	if mlockSufficient {
		slog.Info("Secure memory initialized",
			"mlock_limit_kb", currentMlockLimitKB,
			"required_kb", MinMlockLimitKB,
			"status", "sufficient",
		)
		return
	}
	slog.Error("mlock limit insufficient for secure memory",
		"current_limit_kb", currentMlockLimitKB,
		"required_kb", MinMlockLimitKB,
		"help", "Raise RLIMIT_MEMLOCK or set FLEETCORE_INSECURE_MEMORY=true",
	)
}

// IsMlockAvailable returns whether secure memory is available on this
// system and the current limit in KB (-1 if unlimited).
func IsMlockAvailable() (bool, int64) {
	initMemguard()
	return mlockSufficient, currentMlockLimitKB
}
