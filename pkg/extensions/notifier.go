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
	"log/slog"
	"time"
)

// FleetAlert is one operator-facing notification. The pipeline raises
// alerts for finalized refuels, suspected theft, STOP_IMMEDIATELY
// actions, and DEF derate warnings; transports decide formatting.
type FleetAlert struct {
	// Kind categorizes the alert: "refuel", "theft", "critical_action",
	// "def_derate".
	Kind string

	// TruckID is the affected truck.
	TruckID string

	// Severity mirrors action priority names: "CRITICAL", "HIGH",
	// "MEDIUM", "LOW".
	Severity string

	// Title is a one-line summary suitable for an SMS.
	Title string

	// Detail carries the longer operator message.
	Detail string

	// RaisedAt is when the pipeline raised the alert (UTC).
	RaisedAt time.Time

	// Metadata holds alert-specific values (gallons_added, drop_pct,
	// days_until_derate, ...).
	Metadata map[string]any
}

// Notifier delivers FleetAlerts out of band. Implementations must not
// block the calling worker: buffer internally and deliver asynchronously.
// Delivery failures are the transport's problem; the pipeline never
// retries through this interface.
type Notifier interface {
	// Notify hands one alert to the transport. The context carries a
	// short deadline; implementations should enqueue and return.
	Notify(ctx context.Context, alert FleetAlert) error
}

// NopNotifier discards alerts after a debug log line. The open source
// default: the same alerts remain visible through the HTTP API.
type NopNotifier struct{}

// Notify logs the alert at debug level and discards it.
func (n *NopNotifier) Notify(ctx context.Context, alert FleetAlert) error {
	slog.Debug("alert raised (no transport configured)",
		"kind", alert.Kind,
		"truck_id", alert.TruckID,
		"severity", alert.Severity,
		"title", alert.Title,
	)
	return nil
}

var _ Notifier = (*NopNotifier)(nil)
