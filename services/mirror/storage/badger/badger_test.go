// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_InMemoryPutGet(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Put(ctx, "key", []byte("value")))

	got, err := db.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)
	assert.True(t, db.InMemory())
	assert.Empty(t, db.Path())
}

func TestGet_Missing(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_Overwrites(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Put(ctx, "key", []byte("first")))
	require.NoError(t, db.Put(ctx, "key", []byte("second")))

	got, err := db.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	db, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, db.Put(ctx, "snapshot", []byte("[]")))
	require.NoError(t, db.Close())

	db2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get(ctx, "snapshot")
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), got)
	assert.Equal(t, dir, db2.Path())
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err, "path is required when not in memory")

	cfg := DefaultConfig(t.TempDir())
	cfg.GCDiscardRatio = 1.5
	_, err = Open(cfg)
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.GCInterval = 10 * time.Millisecond
	cfg.Logger = slog.New(slog.DiscardHandler)

	db, err := Open(cfg)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, db.Close())
	assert.NoError(t, db.Close())
}

func TestContextCancelled(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, db.Put(ctx, "k", []byte("v")), context.Canceled)
	_, err = db.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
