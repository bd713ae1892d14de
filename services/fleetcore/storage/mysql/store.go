// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mysql is the operational store: reconciled fuel metrics,
// refuel events, and the command-center history tables. The schema
// pre-exists; the deploy pipeline owns it, this service only reads and
// writes rows.
package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/config"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

// Store wraps the operational database.
//
// # Thread Safety
//
// Safe for concurrent use; gorm manages the connection pool.
type Store struct {
	db  *gorm.DB
	log *logging.Logger
}

// Open dials the operational store. password comes from the secret
// vault, never from config.
func Open(cfg config.DBSettings, password string, log *logging.Logger) (*Store, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("operational store not configured")
	}
	if log == nil {
		log = logging.Default()
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&timeout=%ds",
		cfg.User, password, cfg.Host, cfg.Port, cfg.Name, cfg.ConnectTimeoutSeconds)

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open operational store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("operational store pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{db: db, log: log}, nil
}

// NewWithDB wraps an existing gorm handle, used by tests.
func NewWithDB(db *gorm.DB, log *logging.Logger) *Store {
	if log == nil {
		log = logging.Default()
	}
	return &Store{db: db, log: log}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// missingTable recognizes MySQL error 1146. Optional history tables may
// not exist in every deployment; those writes degrade to no-ops.
func missingTable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 1146") || strings.Contains(msg, "doesn't exist")
}

// optional swallows missing-table errors with a debug line.
func (s *Store) optional(table string, err error) error {
	if missingTable(err) {
		s.log.Debug("optional table absent, write skipped", "table", table)
		return nil
	}
	return err
}

// ============================================================
// Fuel metrics and refuel events
// ============================================================

// UpsertFuelMetrics writes one sync cycle's metric rows. Conflicts on
// (timestamp_utc, truck_id) update in place, so re-processing a cycle
// is idempotent.
func (s *Store) UpsertFuelMetrics(ctx context.Context, metrics []datatypes.FuelMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	rows := make([]FuelMetricRow, 0, len(metrics))
	for i := range metrics {
		rows = append(rows, metricRow(&metrics[i]))
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "timestamp_utc"}, {Name: "truck_id"}},
			UpdateAll: true,
		}).
		CreateInBatches(rows, 200).Error
}

func metricRow(m *datatypes.FuelMetric) FuelMetricRow {
	return FuelMetricRow{
		TimestampUTC:      m.TimestampUTC,
		TruckID:           m.TruckID,
		CarrierID:         m.CarrierID,
		Status:            string(m.Status),
		GPS:               m.GPS,
		SpeedMPH:          m.SpeedMPH,
		SensorPct:         m.SensorPct,
		EstimatedPct:      m.EstimatedPct,
		EstimatedGal:      m.EstimatedGal,
		EstimatedL:        m.EstimatedL,
		ConsumptionL:      m.ConsumptionL,
		ConsumptionG:      m.ConsumptionG,
		MPG:               m.MPG,
		RPM:               m.RPM,
		EngineHours:       m.EngineHours,
		OdometerMi:        m.OdometerMi,
		AltitudeFt:        m.AltitudeFt,
		HDOP:              m.HDOP,
		CoolantTempF:      m.CoolantTempF,
		ConsumptionMethod: m.ConsumptionMethod,
		IdleMode:          m.IdleMode,
		DriftPct:          m.DriftPct,
		DriftWarning:      m.DriftWarning,
		DataAgeMinutes:    m.DataAgeMinutes,
	}
}

// UpsertRefuelEvent writes one finalized refuel. Re-detection of the
// same (truck_id, end_ts) updates the existing row.
func (s *Store) UpsertRefuelEvent(ctx context.Context, ev *datatypes.RefuelEvent) error {
	row := RefuelEventRow{
		TruckID:      ev.TruckID,
		StartTS:      ev.StartTime,
		EndTS:        ev.EndTime,
		BeforePct:    ev.BeforePct,
		AfterPct:     ev.AfterPct,
		GallonsAdded: ev.GallonsAdded,
		Class:        string(ev.Class),
		Source:       string(ev.Source),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "truck_id"}, {Name: "end_ts"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// LastRefuelTime returns the newest refuel end for one truck, or zero
// time when none exists.
func (s *Store) LastRefuelTime(ctx context.Context, truckID string) (time.Time, error) {
	var row RefuelEventRow
	err := s.db.WithContext(ctx).
		Where("truck_id = ?", truckID).
		Order("end_ts DESC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound || missingTable(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return row.EndTS, nil
}

// ============================================================
// Command-center history tables (all optional)
// ============================================================

// InsertRiskScores appends one generation's risk history.
func (s *Store) InsertRiskScores(ctx context.Context, scores []datatypes.TruckRiskScore) error {
	if len(scores) == 0 {
		return nil
	}
	rows := make([]RiskHistoryRow, 0, len(scores))
	for _, sc := range scores {
		factors, _ := json.Marshal(sc.Factors)
		rows = append(rows, RiskHistoryRow{
			TruckID:              sc.TruckID,
			RiskScore:            sc.RiskScore,
			RiskLevel:            sc.RiskLevel.HistoryLevel(),
			Factors:              string(factors),
			DaysSinceMaintenance: sc.DaysSinceMaintenance,
			ActiveIssuesCount:    sc.ActiveIssueCount,
			PredictedFailureDays: sc.PredictedFailureDays,
			Timestamp:            sc.GeneratedAt,
		})
	}
	return s.optional("cc_risk_history",
		s.db.WithContext(ctx).CreateInBatches(rows, 200).Error)
}

// InsertAnomalies appends detected anomalies to the audit history.
func (s *Store) InsertAnomalies(ctx context.Context, anomalies []datatypes.AnomalyRecord) error {
	if len(anomalies) == 0 {
		return nil
	}
	rows := make([]AnomalyHistoryRow, 0, len(anomalies))
	for _, a := range anomalies {
		rows = append(rows, AnomalyHistoryRow{
			TruckID:     a.TruckID,
			Sensor:      a.Sensor,
			AnomalyType: string(a.Type),
			Severity:    a.Severity,
			SensorValue: a.Value,
			EWMAValue:   a.EWMAValue,
			CUSUMValue:  a.CUSUMValue,
			Threshold:   a.Threshold,
			ZScore:      a.ZScore,
			Description: a.Description,
			DetectedAt:  a.DetectedAt,
		})
	}
	return s.optional("cc_anomaly_history",
		s.db.WithContext(ctx).CreateInBatches(rows, 200).Error)
}

// UpsertAlgorithmStates persists the trend engine's statistical state,
// one row per (truck_id, sensor).
func (s *Store) UpsertAlgorithmStates(ctx context.Context, states []datatypes.AlgorithmState) error {
	if len(states) == 0 {
		return nil
	}
	rows := make([]AlgorithmStateRow, 0, len(states))
	for _, st := range states {
		rows = append(rows, AlgorithmStateRow{
			TruckID:        st.TruckID,
			Sensor:         st.Sensor,
			EWMAValue:      st.EWMAValue,
			EWMAVariance:   st.EWMAVariance,
			CUSUMHigh:      st.CUSUMHigh,
			CUSUMLow:       st.CUSUMLow,
			BaselineMean:   st.BaselineMean,
			BaselineStd:    st.BaselineStd,
			SampleCount:    st.SampleCount,
			TrendDirection: string(st.TrendDirection),
			TrendSlope:     st.TrendSlope,
			UpdatedAt:      st.UpdatedAt,
		})
	}
	return s.optional("cc_algorithm_state",
		s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "truck_id"}, {Name: "sensor"}},
				UpdateAll: true,
			}).
			CreateInBatches(rows, 200).Error)
}

// LoadAlgorithmStates restores the persisted statistical state.
func (s *Store) LoadAlgorithmStates(ctx context.Context) ([]datatypes.AlgorithmState, error) {
	var rows []AlgorithmStateRow
	err := s.db.WithContext(ctx).Find(&rows).Error
	if err != nil {
		if missingTable(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]datatypes.AlgorithmState, 0, len(rows))
	for _, row := range rows {
		out = append(out, datatypes.AlgorithmState{
			TruckID:        row.TruckID,
			Sensor:         row.Sensor,
			EWMAValue:      row.EWMAValue,
			EWMAVariance:   row.EWMAVariance,
			CUSUMHigh:      row.CUSUMHigh,
			CUSUMLow:       row.CUSUMLow,
			BaselineMean:   row.BaselineMean,
			BaselineStd:    row.BaselineStd,
			SampleCount:    row.SampleCount,
			TrendDirection: datatypes.TrendDirection(row.TrendDirection),
			TrendSlope:     row.TrendSlope,
			UpdatedAt:      row.UpdatedAt,
		})
	}
	return out, nil
}

// InsertCorrelations appends fired correlation patterns.
func (s *Store) InsertCorrelations(ctx context.Context, correlations []datatypes.FailureCorrelation) error {
	if len(correlations) == 0 {
		return nil
	}
	rows := make([]CorrelationEventRow, 0, len(correlations))
	for _, c := range correlations {
		sensors, _ := json.Marshal(c.CorrelatedSensors)
		trucks, _ := json.Marshal(c.AffectedTrucks)
		rows = append(rows, CorrelationEventRow{
			CorrelationID:     c.CorrelationID,
			PrimarySensor:     c.PrimarySensor,
			CorrelatedSensors: string(sensors),
			Strength:          c.Strength,
			ProbableCause:     c.ProbableCause,
			RecommendedAction: c.RecommendedAction,
			AffectedTrucks:    string(trucks),
			DetectedAt:        c.DetectedAt,
		})
	}
	return s.optional("cc_correlation_events",
		s.db.WithContext(ctx).CreateInBatches(rows, 200).Error)
}

// InsertDEFPrediction appends one DEF consumption observation to the
// history ledger.
func (s *Store) InsertDEFPrediction(ctx context.Context, p *datatypes.DEFPrediction) error {
	row := DEFHistoryRow{
		TruckID:             p.TruckID,
		DEFLevel:            p.CurrentLevelPct,
		FuelUsedSinceRefill: p.FuelUsedSinceRefill,
		EstimatedDEFUsed:    p.EstimatedDEFUsed,
		ConsumptionRate:     p.AvgConsumptionLPerDay,
		IsRefillEvent:       p.IsRefillEvent,
		Timestamp:           p.GeneratedAt,
	}
	return s.optional("cc_def_history",
		s.db.WithContext(ctx).Create(&row).Error)
}

// LastDEFLevel returns the previously recorded DEF level for one truck,
// or nil when no history exists.
func (s *Store) LastDEFLevel(ctx context.Context, truckID string) (*float64, error) {
	var row DEFHistoryRow
	err := s.db.WithContext(ctx).
		Where("truck_id = ?", truckID).
		Order("timestamp DESC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound || missingTable(err) {
			return nil, nil
		}
		return nil, err
	}
	return &row.DEFLevel, nil
}

// LoadConfigOverrides reads the key/value override rows that are
// currently active. Deactivated rows never reach the settings; a
// missing table means no overrides.
func (s *Store) LoadConfigOverrides(ctx context.Context) (map[string]string, error) {
	var rows []ConfigRow
	err := s.db.WithContext(ctx).Where("active = ?", true).Find(&rows).Error
	if err != nil {
		if missingTable(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.ConfigKey] = row.ConfigValue
	}
	return out, nil
}
