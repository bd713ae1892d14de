// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the detector source names and the trust hierarchy
// that decides field provenance when duplicates merge.
package actions

// Detector source names as they appear in ActionItem.Sources.
const (
	SourceRealTimePredictive    = "Real-Time Predictive"
	SourcePredictiveMaintenance = "Predictive Maintenance"
	SourceMLAnomaly             = "ML Anomaly"
	SourceSensorHealth          = "Sensor Health Monitor"
	SourceDTCEvents             = "DTC Events"
	SourceDBAlerts              = "DB Alerts"
	SourceGPSQuality            = "GPS Quality"
	SourceVoltageMonitor        = "Voltage Monitor"
	SourceIdleAnalysis          = "Idle Analysis"
)

// sourceHierarchy ranks detector trust. When merged duplicates disagree
// on current_value/trend/threshold, the highest-weight source wins.
var sourceHierarchy = map[string]int{
	SourceRealTimePredictive:    100,
	SourcePredictiveMaintenance: 90,
	SourceMLAnomaly:             80,
	SourceSensorHealth:          70,
	SourceDTCEvents:             60,
	SourceDBAlerts:              50,
	SourceGPSQuality:            40,
	SourceVoltageMonitor:        40,
	SourceIdleAnalysis:          30,
}

// SourceWeight returns the hierarchy weight of a detector name. Unknown
// sources rank below everything known.
func SourceWeight(source string) int {
	return sourceHierarchy[source]
}

// bestSourceWeight returns the highest hierarchy weight among an item's
// sources.
func bestSourceWeight(sources []string) int {
	best := 0
	for _, s := range sources {
		if w := SourceWeight(s); w > best {
			best = w
		}
	}
	return best
}
