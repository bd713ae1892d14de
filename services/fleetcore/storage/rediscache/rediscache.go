// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rediscache is the optional hot-state mirror. When REDIS_URL
// is set, algorithm state is shadowed with a TTL so a restarting
// replica warm-starts its trend engine without a MySQL read, and
// rendered responses are shadowed for multi-replica deployments. The
// mirror is advisory: every operation degrades to a miss on error and
// the service runs identically without it.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
)

const (
	algorithmKeyPrefix = "fleetcore:alg:"
	responseKeyPrefix  = "fleetcore:resp:"
)

// Mirror shadows warm state in Redis.
//
// # Thread Safety
//
// Safe for concurrent use; go-redis pools connections internally.
type Mirror struct {
	client *redis.Client
}

// Open dials Redis from a URL (redis://[:pass@]host:port/db) and
// verifies the connection.
func Open(ctx context.Context, url string) (*Mirror, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Mirror{client: client}, nil
}

// NewWithClient wraps an existing client, used by tests.
func NewWithClient(client *redis.Client) *Mirror {
	return &Mirror{client: client}
}

// Close releases the connection pool.
func (m *Mirror) Close() error {
	return m.client.Close()
}

// SaveAlgorithmStates mirrors the trend engine's state, one key per
// (truck, sensor), all with the same TTL.
func (m *Mirror) SaveAlgorithmStates(ctx context.Context, states []datatypes.AlgorithmState, ttl time.Duration) error {
	pipe := m.client.Pipeline()
	for _, st := range states {
		raw, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshal algorithm state %s/%s: %w", st.TruckID, st.Sensor, err)
		}
		pipe.Set(ctx, algorithmKey(st.TruckID, st.Sensor), raw, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror algorithm states: %w", err)
	}
	return nil
}

// LoadAlgorithmStates returns every mirrored state still inside its
// TTL. Entries that fail to decode are skipped.
func (m *Mirror) LoadAlgorithmStates(ctx context.Context) ([]datatypes.AlgorithmState, error) {
	var out []datatypes.AlgorithmState

	iter := m.client.Scan(ctx, 0, algorithmKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		raw, err := m.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // expired between SCAN and GET
			}
			return nil, fmt.Errorf("read mirrored state: %w", err)
		}
		var st datatypes.AlgorithmState
		if err := json.Unmarshal(raw, &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan mirrored state: %w", err)
	}
	return out, nil
}

// SetResponse shadows one rendered response body.
func (m *Mirror) SetResponse(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	return m.client.Set(ctx, responseKeyPrefix+key, body, ttl).Err()
}

// GetResponse returns a shadowed response body, or ok=false on a miss.
func (m *Mirror) GetResponse(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := m.client.Get(ctx, responseKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

func algorithmKey(truckID, sensor string) string {
	return algorithmKeyPrefix + truckID + ":" + sensor
}
