// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the typed state store layered on the raw database:
// estimator snapshots under est/, algorithm state under alg/.
package badger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/estimator"
)

const (
	estimatorPrefix = "est/"
	algorithmPrefix = "alg/"
)

// StateStore persists the warm per-truck state.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type StateStore struct {
	db *badger.DB
}

// NewStateStore wraps an open database.
func NewStateStore(db *badger.DB) *StateStore {
	return &StateStore{db: db}
}

// SaveEstimatorState writes one truck's estimator snapshot.
func (s *StateStore) SaveEstimatorState(st estimator.PersistedState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal estimator state %s: %w", st.TruckID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(estimatorPrefix+st.TruckID), raw)
	})
}

// SaveEstimatorStates writes a batch in one transaction.
func (s *StateStore) SaveEstimatorStates(states []estimator.PersistedState) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, st := range states {
			raw, err := json.Marshal(st)
			if err != nil {
				return fmt.Errorf("marshal estimator state %s: %w", st.TruckID, err)
			}
			if err := txn.Set([]byte(estimatorPrefix+st.TruckID), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadEstimatorStates returns every persisted estimator snapshot keyed
// by truck id. Staleness is judged by the caller on restore; entries
// saved more than maxAge ago are skipped here to keep dead trucks from
// accumulating.
func (s *StateStore) LoadEstimatorStates(maxAge time.Duration, now time.Time) (map[string]estimator.PersistedState, error) {
	out := make(map[string]estimator.PersistedState)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(estimatorPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var st estimator.PersistedState
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &st)
			}); err != nil {
				// A corrupt entry loses one truck's warm start, not the
				// whole fleet's.
				continue
			}
			if maxAge > 0 && now.Sub(st.SavedAt) > maxAge {
				continue
			}
			out[st.TruckID] = st
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load estimator states: %w", err)
	}
	return out, nil
}

// SaveAlgorithmStates writes the trend engine's statistical state in
// one transaction.
func (s *StateStore) SaveAlgorithmStates(states []datatypes.AlgorithmState) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, st := range states {
			raw, err := json.Marshal(st)
			if err != nil {
				return fmt.Errorf("marshal algorithm state %s/%s: %w", st.TruckID, st.Sensor, err)
			}
			key := fmt.Sprintf("%s%s/%s", algorithmPrefix, st.TruckID, st.Sensor)
			if err := txn.Set([]byte(key), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAlgorithmStates returns every persisted algorithm state.
func (s *StateStore) LoadAlgorithmStates() ([]datatypes.AlgorithmState, error) {
	var out []datatypes.AlgorithmState
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(algorithmPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var st datatypes.AlgorithmState
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &st)
			}); err != nil {
				continue
			}
			out = append(out, st)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load algorithm states: %w", err)
	}
	return out, nil
}

// DeleteEstimatorState drops one truck, e.g. after it leaves the fleet.
func (s *StateStore) DeleteEstimatorState(truckID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(estimatorPrefix + truckID))
	})
}
