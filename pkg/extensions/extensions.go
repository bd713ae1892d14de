// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the pluggable surfaces of FleetCore.
//
// The core pipeline treats alert delivery and compliance logging as
// external collaborators: it decides WHEN a fleet operator should hear
// about something, but HOW the message travels (email, SMS, webhook) and
// WHERE audit rows land are deployment concerns. This package provides
// the interfaces plus no-op defaults so the open source service runs
// complete without any transport configured.
//
// # Usage
//
// Default (no transports):
//
//	opts := extensions.DefaultOptions()
//	svc, err := fleetcore.New(cfg, &opts)
//
// With a custom notifier:
//
//	opts := extensions.DefaultOptions().WithNotifier(smsGateway)
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; workers and HTTP
// handlers call them simultaneously.
package extensions

// ServiceOptions groups the extension points injected into the service
// constructor. Nil fields are replaced with no-op defaults.
type ServiceOptions struct {
	// Notifier delivers operator-facing fleet alerts.
	// Default: NopNotifier (discards).
	Notifier Notifier

	// AuditLogger records emitted fuel events for compliance review.
	// Default: NopAuditLogger (discards).
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults. This is the
// configuration the open source service runs with: alerts are computed
// and served over the API, but no out-of-band delivery happens.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		Notifier:    &NopNotifier{},
		AuditLogger: &NopAuditLogger{},
	}
}

// WithNotifier returns a copy of opts with the given Notifier.
func (opts ServiceOptions) WithNotifier(n Notifier) ServiceOptions {
	opts.Notifier = n
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(l AuditLogger) ServiceOptions {
	opts.AuditLogger = l
	return opts
}
