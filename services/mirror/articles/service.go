// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package articles ties replication to the snapshot: Fetch runs the
// replicator and saves its forest, All and Get read the last saved forest.
// The HTTP handlers and the CLI both drive this service.
package articles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianMirror/pkg/validation"
	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
	"github.com/AleutianAI/AleutianMirror/services/mirror/observability"
	"github.com/AleutianAI/AleutianMirror/services/mirror/replicate"
	"github.com/AleutianAI/AleutianMirror/services/mirror/snapshot"
	"github.com/AleutianAI/AleutianMirror/services/mirror/source"
)

// Config configures a Service.
type Config struct {
	// Root is the listing each run starts from.
	Root source.Target

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Service runs fetches and serves reads from the snapshot.
type Service struct {
	replicator *replicate.Replicator
	store      snapshot.Store
	root       source.Target
	logger     *slog.Logger
	metrics    *observability.Metrics
	loads      singleflight.Group
}

// ErrReadOnly is returned by Fetch on a Service built without a replicator.
var ErrReadOnly = errors.New("articles: service is read-only")

// NewService builds a Service. A nil replicator gives a read-only Service
// that can serve the snapshot without remote credentials.
func NewService(replicator *replicate.Replicator, store snapshot.Store, cfg Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("articles: store is required")
	}
	if replicator != nil && cfg.Root.ID == "" {
		return nil, errors.New("articles: root id is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		replicator: replicator,
		store:      store,
		root:       cfg.Root,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Root returns the configured root listing.
func (s *Service) Root() source.Target {
	return s.root
}

// Fetch replicates the root with the given depth override (0 keeps the
// configured depth) and saves the forest. On a save failure the outcome is
// still returned alongside an error wrapping snapshot.ErrPersist.
func (s *Service) Fetch(ctx context.Context, maxDepth int) (replicate.Outcome, error) {
	if s.replicator == nil {
		return replicate.Outcome{}, ErrReadOnly
	}
	start := time.Now()

	outcome, err := s.replicator.Replicate(ctx, s.root, replicate.Options{MaxDepth: maxDepth})
	if err != nil {
		if !errors.Is(err, replicate.ErrDepthOutOfRange) {
			s.metrics.RecordRun(observability.RunError, time.Since(start), 0)
		}
		return outcome, err
	}

	err = s.store.Save(ctx, outcome.Forest)
	s.metrics.RecordSnapshotOp("save", err)
	if err != nil {
		s.logger.Error("Failed to save snapshot", "run_id", outcome.RunID, "error", err)
		s.metrics.RecordRun(observability.RunError, time.Since(start), 0)
		return outcome, fmt.Errorf("save snapshot: %w", err)
	}

	status := observability.RunSuccess
	if outcome.Partial() {
		status = observability.RunPartial
	}
	s.metrics.RecordRun(status, time.Since(start), outcome.Forest.Count())
	s.logger.Info("Snapshot saved", "run_id", outcome.RunID, "status", status,
		"location", s.store.Location(), "articles", len(outcome.Forest),
		"depth", outcome.Forest.Depth(), "duration_ms", time.Since(start).Milliseconds())
	return outcome, nil
}

// All returns the saved forest. Concurrent calls share one load. The
// forest is shared between callers and must not be modified.
//
// The shared load is detached from cancellation, so one caller going away
// does not fail the others; each caller still stops waiting when its own
// ctx is done.
func (s *Service) All(ctx context.Context) (content.Forest, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan("snapshot", func() (any, error) {
		forest, err := s.store.Load(loadCtx)
		s.metrics.RecordSnapshotOp("load", err)
		return forest, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(content.Forest), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", snapshot.ErrUnavailable, ctx.Err())
	}
}

// Get finds a node by id in the saved forest. A well-formed content id is
// also tried in its canonical dashed form. Absence is (nil, false, nil).
func (s *Service) Get(ctx context.Context, id string) (*content.Node, bool, error) {
	forest, err := s.All(ctx)
	if err != nil {
		return nil, false, err
	}

	node, ok := forest.Find(id)
	if !ok {
		if canonical, err := validation.NormalizeContentID(id); err == nil && canonical != id {
			node, ok = forest.Find(canonical)
		}
	}
	s.metrics.RecordLookup(ok)
	return node, ok, nil
}
