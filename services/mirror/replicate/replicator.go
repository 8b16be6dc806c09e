// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package replicate mirrors a remote content tree into a content.Forest.
//
// # Description
//
// A run lists the configured root, then expands every node it receives:
// pages and blocks with children have their block children fetched,
// databases have their rows fetched and each row expanded in turn. Every
// expansion passes two checks first:
//
//   - depth: a node is expanded only while its distance from its top-level
//     ancestor is below both MaxDepth and OverallDepthLimit
//   - visited: a node id is expanded at most once per run, which stops
//     cycles and collapses diamonds
//
// Listing failures never abort a run. The listing keeps what it received,
// the failure is logged and returned in Outcome.Warnings, and siblings
// continue. Only a root listing that fails before yielding anything fails
// the run.
//
// # Thread Safety
//
// A Replicator is safe for concurrent runs; each run owns its VisitedSet.
// Within a run all fetches are sequential.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
	"github.com/AleutianAI/AleutianMirror/services/mirror/observability"
	"github.com/AleutianAI/AleutianMirror/services/mirror/source"
)

const (
	DefaultMaxDepth          = 5
	DefaultOverallDepthLimit = 7
)

var tracer = otel.Tracer("mirror.replicate")

var (
	// ErrRootListing is returned when the root listing yields nothing and fails.
	ErrRootListing = errors.New("root listing failed")

	// ErrDepthOutOfRange is returned for a depth override outside 1..OverallDepthLimit.
	ErrDepthOutOfRange = errors.New("max depth out of range")
)

// Config configures a Replicator.
type Config struct {
	// MaxDepth bounds expansion distance. Default: DefaultMaxDepth.
	MaxDepth int

	// OverallDepthLimit is a hard cap that also bounds per-run overrides.
	// Default: DefaultOverallDepthLimit.
	OverallDepthLimit int

	// Logger for run progress and fetch warnings. Default: slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *observability.Metrics
}

// Options adjust a single run.
type Options struct {
	// MaxDepth overrides Config.MaxDepth for this run when non-zero.
	MaxDepth int
}

// Outcome is the result of one run.
type Outcome struct {
	RunID  string
	Forest content.Forest

	// Warnings holds one *source.FetchError per truncated listing.
	Warnings []error

	// Requests is the number of page requests sent.
	Requests int

	// Expanded is the number of distinct nodes whose listings were fetched.
	Expanded int

	// MaxDepth is the bound applied to this run.
	MaxDepth int
}

// Partial reports whether any listing in the run was truncated.
func (o Outcome) Partial() bool {
	return len(o.Warnings) > 0
}

// Replicator expands a remote tree into a forest.
type Replicator struct {
	src          source.Source
	maxDepth     int
	overallLimit int
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// New builds a Replicator reading from src.
func New(src source.Source, cfg Config) (*Replicator, error) {
	if src == nil {
		return nil, errors.New("replicator: source is required")
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.OverallDepthLimit == 0 {
		cfg.OverallDepthLimit = DefaultOverallDepthLimit
	}
	if cfg.MaxDepth < 0 || cfg.OverallDepthLimit < 0 {
		return nil, fmt.Errorf("replicator: depth bounds must be positive (max_depth=%d, overall_depth_limit=%d)",
			cfg.MaxDepth, cfg.OverallDepthLimit)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Replicator{
		src:          src,
		maxDepth:     cfg.MaxDepth,
		overallLimit: cfg.OverallDepthLimit,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}, nil
}

// EffectiveDepth returns the bound a run with the given override would use.
func (r *Replicator) EffectiveDepth(override int) (int, error) {
	maxDepth := r.maxDepth
	if override != 0 {
		if override < 1 || override > r.overallLimit {
			return 0, fmt.Errorf("%w: %d not in 1..%d", ErrDepthOutOfRange, override, r.overallLimit)
		}
		maxDepth = override
	}
	return min(maxDepth, r.overallLimit), nil
}

// run is the state of one Replicate call.
type run struct {
	id           string
	visited      *VisitedSet
	maxDepth     int
	overallLimit int
	warnings     []error
	requests     int
	logger       *slog.Logger
}

func (st *run) withinBounds(depth int) bool {
	return depth < st.maxDepth && depth < st.overallLimit
}

// Replicate lists root and expands every node it returns.
func (r *Replicator) Replicate(ctx context.Context, root source.Target, opts Options) (Outcome, error) {
	maxDepth := r.maxDepth
	if opts.MaxDepth != 0 {
		if _, err := r.EffectiveDepth(opts.MaxDepth); err != nil {
			return Outcome{}, err
		}
		maxDepth = opts.MaxDepth
	}

	st := &run{
		id:           uuid.NewString(),
		visited:      NewVisitedSet(),
		maxDepth:     maxDepth,
		overallLimit: r.overallLimit,
	}
	st.logger = r.logger.With("run_id", st.id)

	ctx, span := tracer.Start(ctx, "replicate.Replicate")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", st.id),
		attribute.String("root", root.String()),
		attribute.Int("max_depth", min(maxDepth, r.overallLimit)),
	)

	st.logger.Info("Starting fetch run", "root", root.String(), "max_depth", maxDepth,
		"overall_depth_limit", r.overallLimit)

	st.visited.MarkVisited(root.ID)
	top := r.fetch(ctx, st, root)
	if top.Err != nil && len(top.Nodes) == 0 {
		span.RecordError(top.Err)
		span.SetStatus(codes.Error, "root listing failed")
		return Outcome{RunID: st.id, Warnings: st.warnings, Requests: st.requests},
			fmt.Errorf("%w: %w", ErrRootListing, top.Err)
	}

	forest := make(content.Forest, 0, len(top.Nodes))
	for _, n := range top.Nodes {
		forest = append(forest, r.attach(ctx, st, n, 0))
	}

	outcome := Outcome{
		RunID:    st.id,
		Forest:   forest,
		Warnings: st.warnings,
		Requests: st.requests,
		Expanded: st.visited.Len() - 1,
		MaxDepth: min(maxDepth, r.overallLimit),
	}
	span.SetAttributes(
		attribute.Int("run.requests", outcome.Requests),
		attribute.Int("run.warnings", len(outcome.Warnings)),
	)
	st.logger.Info("Fetch run complete", "articles", len(forest), "requests", outcome.Requests,
		"expanded", outcome.Expanded, "warnings", len(outcome.Warnings))
	return outcome, nil
}

// Expand returns the expanded block children of node at the given depth
// using a fresh visited set. Replicate is the entry point for whole runs.
func (r *Replicator) Expand(ctx context.Context, node *content.Node, depth int) ([]*content.Node, []error) {
	st := &run{
		id:           uuid.NewString(),
		visited:      NewVisitedSet(),
		maxDepth:     r.maxDepth,
		overallLimit: r.overallLimit,
	}
	st.logger = r.logger.With("run_id", st.id)
	return r.expand(ctx, st, node, depth), st.warnings
}

// attach returns node with its descendants expanded according to its kind.
// depth is the node's own distance from its top-level ancestor.
func (r *Replicator) attach(ctx context.Context, st *run, node *content.Node, depth int) *content.Node {
	switch {
	case node.Kind == content.KindPage:
		return node.WithChildren(r.expand(ctx, st, node, depth))
	case node.Kind == content.KindDatabase:
		return node.WithPages(r.expandRows(ctx, st, node, depth))
	case node.HasChildren:
		return node.WithChildren(r.expand(ctx, st, node, depth))
	default:
		return node
	}
}

// expand fetches and expands the block children of node. It returns nil
// when node is at the depth bound or was already expanded in this run.
func (r *Replicator) expand(ctx context.Context, st *run, node *content.Node, depth int) []*content.Node {
	if !st.withinBounds(depth) {
		return nil
	}
	if !st.visited.MarkVisited(node.ID) {
		st.logger.Debug("Skipping visited node", "node_id", node.ID, "depth", depth)
		return nil
	}

	listed := r.fetch(ctx, st, source.Children(node.ID))
	children := make([]*content.Node, 0, len(listed.Nodes))
	for _, child := range listed.Nodes {
		children = append(children, r.attach(ctx, st, child, depth+1))
	}
	return children
}

// expandRows fetches the rows of database db and expands each row one
// level further down. The same depth and visited checks apply.
func (r *Replicator) expandRows(ctx context.Context, st *run, db *content.Node, depth int) []*content.Node {
	if !st.withinBounds(depth) {
		return nil
	}
	if !st.visited.MarkVisited(db.ID) {
		st.logger.Debug("Skipping visited database", "node_id", db.ID, "depth", depth)
		return nil
	}

	listed := r.fetch(ctx, st, source.Rows(db.ID))
	rows := make([]*content.Node, 0, len(listed.Nodes))
	for _, row := range listed.Nodes {
		rows = append(rows, row.WithChildren(r.expand(ctx, st, row, depth+1)))
	}
	return rows
}

func (r *Replicator) fetch(ctx context.Context, st *run, target source.Target) source.Result {
	result := source.FetchAll(ctx, r.src, target)
	st.requests += result.Requests
	r.metrics.RecordListing(string(target.Listing), result.Requests, result.Err != nil)

	if result.Err != nil {
		st.warnings = append(st.warnings, result.Err)
		st.logger.Warn("Listing truncated", "target", target.String(),
			"received", len(result.Nodes), "error", result.Err)
	}
	return result
}
