// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the optional InfluxDB mirror: one point per fuel
// metric for high-resolution history beyond what the operational store
// keeps queryable.
package workers

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/FleetCore/services/fleetcore/config"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// InfluxMirror writes fuel metrics as time-series points.
//
// # Thread Safety
//
// Safe for concurrent use; the blocking write API serializes batches.
type InfluxMirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxMirror dials the configured InfluxDB instance. Call only
// when cfg.Enabled().
func NewInfluxMirror(cfg config.InfluxSettings) *InfluxMirror {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxMirror{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// WriteMetrics mirrors one cycle's metric rows. Implements
// MetricMirror.
func (m *InfluxMirror) WriteMetrics(ctx context.Context, metrics []datatypes.FuelMetric) error {
	for i := range metrics {
		row := &metrics[i]
		fields := map[string]interface{}{
			"estimated_pct":   row.EstimatedPct,
			"estimated_gal":   row.EstimatedGal,
			"consumption_gph": row.ConsumptionG,
			"consumption_lph": row.ConsumptionL,
			"data_age_min":    row.DataAgeMinutes,
		}
		addOpt := func(name string, v *float64) {
			if v != nil {
				fields[name] = *v
			}
		}
		addOpt("sensor_pct", row.SensorPct)
		addOpt("speed_mph", row.SpeedMPH)
		addOpt("mpg", row.MPG)
		addOpt("rpm", row.RPM)
		addOpt("engine_hours", row.EngineHours)
		addOpt("odometer_mi", row.OdometerMi)
		addOpt("coolant_temp_f", row.CoolantTempF)
		addOpt("drift_pct", row.DriftPct)

		p := influxdb2.NewPoint(
			"fuel_metrics",
			map[string]string{
				"truck_id":   row.TruckID,
				"carrier_id": row.CarrierID,
				"status":     string(row.Status),
			},
			fields,
			row.TimestampUTC,
		)
		if err := m.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and releases the client.
func (m *InfluxMirror) Close() {
	m.client.Close()
}
