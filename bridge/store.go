// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"encoding/json"
	"errors"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
)

// Key prefixes in the underlying database.
var (
	depositPrefix    = []byte("bridge/deposit/")
	withdrawalPrefix = []byte("bridge/withdrawal/")
	processedPrefix  = []byte("bridge/processed/")
)

// RecordStore persists the bridge's audit trail. Records are written once on
// commit and never rewritten; the processed-withdrawal markers make replay
// protection survive a restart.
type RecordStore struct {
	db database.Database
}

// NewRecordStore wraps a key-value database as a bridge audit store.
func NewRecordStore(db database.Database) *RecordStore {
	return &RecordStore{db: db}
}

// PutDeposit persists a deposit record under its ID.
func (s *RecordStore) PutDeposit(rec *DepositRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Put(key(depositPrefix, rec.ID), raw)
}

// GetDeposit loads a deposit record by ID.
func (s *RecordStore) GetDeposit(id common.Hash) (*DepositRecord, error) {
	raw, err := s.db.Get(key(depositPrefix, id))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	rec := new(DepositRecord)
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutWithdrawal persists a withdrawal record and its processed marker.
func (s *RecordStore) PutWithdrawal(rec *WithdrawalRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.db.Put(key(withdrawalPrefix, rec.ID), raw); err != nil {
		return err
	}
	return s.db.Put(key(processedPrefix, rec.ID), []byte{1})
}

// GetWithdrawal loads a withdrawal record by ID.
func (s *RecordStore) GetWithdrawal(id common.Hash) (*WithdrawalRecord, error) {
	raw, err := s.db.Get(key(withdrawalPrefix, id))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	rec := new(WithdrawalRecord)
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// IsWithdrawalProcessed reports whether a processed marker exists for id.
func (s *RecordStore) IsWithdrawalProcessed(id common.Hash) (bool, error) {
	return s.db.Has(key(processedPrefix, id))
}

func key(prefix []byte, id common.Hash) []byte {
	k := make([]byte, 0, len(prefix)+common.HashLength)
	k = append(k, prefix...)
	return append(k, id.Bytes()...)
}
