// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wialon

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AleutianAI/FleetCore/services/fleetcore/config"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/registry"
)

var sensorCols = []string{"unit", "p", "value", "m", "from_latitude", "from_longitude"}

func newMockReader(t *testing.T) (*Reader, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	reader, err := NewReader(ReaderConfig{
		Poller: config.DefaultSettings().Poller,
		Conn:   db,
	})
	require.NoError(t, err)
	return reader, mock
}

func bindTestRegistry(t *testing.T, r *Reader) {
	t.Helper()
	reg, err := registry.New([]datatypes.TruckConfig{
		{TruckID: "T-100", UnitID: 1, CapacityGallons: 200},
		{TruckID: "T-200", UnitID: 2, CapacityGallons: 150},
	})
	require.NoError(t, err)
	r.Bind(reg)
}

func TestLoadUnitsMapSkipsBadRows(t *testing.T) {
	reader, mock := newMockReader(t)

	mock.ExpectQuery("FROM units_map").WillReturnRows(
		sqlmock.NewRows([]string{"beyondId", "unit", "fuel_capacity"}).
			AddRow("T-100", 1, 200.0).
			AddRow(nil, 7, 150.0).   // no truck id
			AddRow("T-300", 3, 0.0). // no usable capacity
			AddRow("T-200", 2, 150.0))

	configs, err := reader.LoadUnitsMap(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "T-100", configs[0].TruckID)
	assert.Equal(t, 200.0, configs[0].CapacityGallons)
	assert.Equal(t, "T-200", configs[1].TruckID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadAllTrucksRequiresRegistry(t *testing.T) {
	reader, _ := newMockReader(t)

	_, err := reader.ReadAllTrucks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry")
}

func TestReadAllTrucksFoldsLatestRows(t *testing.T) {
	reader, mock := newMockReader(t)
	bindTestRegistry(t, reader)

	now := time.Now().UTC().Unix()
	mock.ExpectQuery("ROW_NUMBER").WillReturnRows(
		sqlmock.NewRows(sensorCols).
			AddRow(1, "fuel_lvl", "62.0", now, 29.1, -110.9).
			AddRow(1, "fuel_lvl", "64.0", now-120, nil, nil). // older reading loses
			AddRow(1, "speed", "55", now, nil, nil).
			AddRow(2, "fuel_lvl", "41.5", now-30, nil, nil).
			AddRow(9, "fuel_lvl", "10.0", now, nil, nil)) // unmapped unit ignored

	snaps, err := reader.ReadAllTrucks(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.Equal(t, "T-100", snaps[0].TruckID)
	require.NotNil(t, snaps[0].FuelLvl)
	assert.Equal(t, 62.0, *snaps[0].FuelLvl)
	require.NotNil(t, snaps[0].Speed)
	assert.Equal(t, 55.0, *snaps[0].Speed)
	require.NotNil(t, snaps[0].Latitude)
	assert.Equal(t, now, snaps[0].EpochSeconds)

	assert.Equal(t, "T-200", snaps[1].TruckID)
	require.NotNil(t, snaps[1].FuelLvl)
	assert.Equal(t, 41.5, *snaps[1].FuelLvl)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadAllTrucksFallsBackWithoutWindowFunctions(t *testing.T) {
	reader, mock := newMockReader(t)
	bindTestRegistry(t, reader)

	now := time.Now().UTC().Unix()
	mock.ExpectQuery("ROW_NUMBER").
		WillReturnError(assertSyntaxError{})
	mock.ExpectQuery("ORDER BY m DESC").WillReturnRows(
		sqlmock.NewRows(sensorCols).
			AddRow(1, "fuel_lvl", "62.0", now, nil, nil))

	snaps, err := reader.ReadAllTrucks(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "T-100", snaps[0].TruckID)

	// Later cycles go straight to the bulk query.
	mock.ExpectQuery("ORDER BY m DESC").WillReturnRows(sqlmock.NewRows(sensorCols))
	_, err = reader.ReadAllTrucks(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadAllTrucksBackfillsMissingFuel(t *testing.T) {
	reader, mock := newMockReader(t)
	bindTestRegistry(t, reader)

	now := time.Now().UTC().Unix()
	mock.ExpectQuery("ROW_NUMBER").WillReturnRows(
		sqlmock.NewRows(sensorCols).
			AddRow(1, "speed", "55", now, nil, nil))
	mock.ExpectQuery("AND p = \\?").WillReturnRows(
		sqlmock.NewRows(sensorCols).
			AddRow(1, "fuel_lvl", "58.5", now-3600, nil, nil))

	snaps, err := reader.ReadAllTrucks(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.NotNil(t, snaps[0].FuelLvl)
	assert.Equal(t, 58.5, *snaps[0].FuelLvl)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// assertSyntaxError stands in for a MySQL 5.x "unknown function"
// response to the windowed query.
type assertSyntaxError struct{}

func (assertSyntaxError) Error() string {
	return "Error 1064: You have an error in your SQL syntax near 'OVER'"
}
