// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists the replicated forest as a single JSON document.
//
// Every backend replaces the previous snapshot as a whole: a reader sees
// either the old forest or the new one, never a mix. Load distinguishes a
// snapshot that does not exist (ErrUnavailable) from one that exists but is
// not a forest (ErrCorrupt).
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
)

var (
	// ErrPersist wraps every Save failure.
	ErrPersist = errors.New("snapshot persist failed")

	// ErrUnavailable means no snapshot exists or it could not be read.
	ErrUnavailable = errors.New("snapshot unavailable")

	// ErrCorrupt means the stored bytes are not a JSON array of node objects.
	ErrCorrupt = errors.New("snapshot corrupt")
)

// Store saves and loads the forest.
type Store interface {
	// Save replaces the stored snapshot with forest.
	Save(ctx context.Context, forest content.Forest) error

	// Load returns the last saved forest.
	Load(ctx context.Context) (content.Forest, error)

	// Close releases the backend.
	Close() error

	// Location names where the snapshot lives, for logs.
	Location() string
}

func encode(forest content.Forest) ([]byte, error) {
	data, err := content.EncodeForest(forest)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	return data, nil
}

func decode(data []byte) (content.Forest, error) {
	forest, err := content.DecodeForest(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return forest, nil
}
