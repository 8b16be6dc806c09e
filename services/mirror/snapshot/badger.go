// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
	"github.com/AleutianAI/AleutianMirror/services/mirror/storage/badger"
)

// BadgerKey is the key holding the encoded forest.
const BadgerKey = "snapshot/forest"

// BadgerStore keeps the snapshot under one key of an embedded BadgerDB.
// A Save is one transaction, so readers never observe a partial forest.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open database. The store owns db and closes it.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens the database described by cfg.
func OpenBadgerStore(cfg badger.Config) (*BadgerStore, error) {
	db, err := badger.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewBadgerStore(db), nil
}

func (s *BadgerStore) Save(ctx context.Context, forest content.Forest) error {
	data, err := encode(forest)
	if err != nil {
		return err
	}
	if err := s.db.Put(ctx, BadgerKey, data); err != nil {
		return fmt.Errorf("%w: badger put: %w", ErrPersist, err)
	}
	return nil
}

func (s *BadgerStore) Load(ctx context.Context) (content.Forest, error) {
	data, err := s.db.Get(ctx, BadgerKey)
	if err != nil {
		if errors.Is(err, badger.ErrNotFound) {
			return nil, fmt.Errorf("%w: no snapshot saved", ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: badger get: %w", ErrUnavailable, err)
	}
	return decode(data)
}

// Location returns the database directory, or "memory" for an in-memory database.
func (s *BadgerStore) Location() string {
	if s.db.InMemory() {
		return "memory"
	}
	return s.db.Path()
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
