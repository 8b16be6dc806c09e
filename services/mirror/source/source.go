// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source talks to the remote content provider.
//
// The provider is modelled as a set of cursor-paginated listings: the block
// children of a node, and the rows of a database. FetchAll drains one
// listing; Client implements Source against the Notion REST API.
package source

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
)

var tracer = otel.Tracer("mirror.source")

// ListingKind selects which provider listing a Target refers to.
type ListingKind string

const (
	// ListingChildren lists the direct block children of a node.
	ListingChildren ListingKind = "block_children"

	// ListingRows lists the rows (pages) of a database.
	ListingRows ListingKind = "database_rows"
)

// Target identifies one paginated listing.
type Target struct {
	ID      string
	Listing ListingKind
}

// Children returns the block-children listing of id.
func Children(id string) Target {
	return Target{ID: id, Listing: ListingChildren}
}

// Rows returns the row listing of database id.
func Rows(id string) Target {
	return Target{ID: id, Listing: ListingRows}
}

func (t Target) String() string {
	return string(t.Listing) + ":" + t.ID
}

// Page is one page of a listing.
type Page struct {
	Results    []*content.Node
	HasMore    bool
	NextCursor string
}

// Source returns one page of a listing starting at cursor ("" for the first page).
type Source interface {
	List(ctx context.Context, target Target, cursor string) (Page, error)
}

// ErrMissingCursor is reported when a page claims more results but carries no cursor.
var ErrMissingCursor = errors.New("listing reported more results without a cursor")

// FetchError records a listing that stopped early.
type FetchError struct {
	Target Target
	Cursor string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Cursor == "" {
		return fmt.Sprintf("fetch %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("fetch %s at cursor %s: %v", e.Target, e.Cursor, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result is a drained listing. When Err is set, Nodes holds everything
// received before the failing request.
type Result struct {
	Nodes    []*content.Node
	Requests int
	Err      error
}

// FetchAll drains target page by page, in order, until the source reports no
// more pages. The first failed request ends the listing; there is no retry.
// Nodes is never nil.
func FetchAll(ctx context.Context, src Source, target Target) Result {
	ctx, span := tracer.Start(ctx, "source.FetchAll", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String("listing.id", target.ID),
		attribute.String("listing.kind", string(target.Listing)),
	)

	result := Result{Nodes: make([]*content.Node, 0)}
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			result.Err = &FetchError{Target: target, Cursor: cursor, Err: err}
			break
		}

		result.Requests++
		page, err := src.List(ctx, target, cursor)
		if err != nil {
			result.Err = &FetchError{Target: target, Cursor: cursor, Err: err}
			break
		}
		result.Nodes = append(result.Nodes, page.Results...)

		if !page.HasMore {
			break
		}
		if page.NextCursor == "" {
			result.Err = &FetchError{Target: target, Cursor: cursor, Err: ErrMissingCursor}
			break
		}
		cursor = page.NextCursor
	}

	span.SetAttributes(
		attribute.Int("listing.requests", result.Requests),
		attribute.Int("listing.nodes", len(result.Nodes)),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "listing truncated")
	}
	return result
}
