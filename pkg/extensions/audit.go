// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"time"
)

// AuditEvent is one compliance-relevant pipeline event. Carriers that
// bill fuel per truck use these records to reconcile pump receipts
// against detected refuels.
//
// Event types follow "category.action":
//   - "fuel.refuel", "fuel.theft_suspected", "fuel.theft_confirmed"
//   - "fuel.drift_reset"
//   - "system.start", "system.stop"
type AuditEvent struct {
	// EventType categorizes the event, format "category.action".
	EventType string

	// Timestamp is when the event occurred (UTC). Implementations fill
	// time.Now().UTC() if zero.
	Timestamp time.Time

	// TruckID is the affected truck, or "fleet" for process-level events.
	TruckID string

	// Outcome is "success", "rejected", or "error".
	Outcome string

	// Metadata holds event-specific values (gallons, percent_before,
	// percent_after, detection source).
	Metadata map[string]any
}

// AuditLogger records AuditEvents to a compliance sink. Implementations
// buffer internally; a failed write must not surface to the pipeline.
type AuditLogger interface {
	// Record stores one event.
	Record(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger discards all events. The operational store already
// keeps refuel_events rows; the audit trail is an additional sink for
// deployments that need one.
type NopAuditLogger struct{}

// Record discards the event.
func (l *NopAuditLogger) Record(ctx context.Context, event AuditEvent) error {
	return nil
}

var _ AuditLogger = (*NopAuditLogger)(nil)
