// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
)

// --- Mock Source ---

type MockSource struct {
	ListFunc func(ctx context.Context, target Target, cursor string) (Page, error)
	Cursors  []string
}

func (m *MockSource) List(ctx context.Context, target Target, cursor string) (Page, error) {
	m.Cursors = append(m.Cursors, cursor)
	return m.ListFunc(ctx, target, cursor)
}

// scriptedPages serves pages of the given sizes. Page i is requested with
// cursor "c<i>" (page 0 with ""), and node ids are "n0".."nN" in order.
func scriptedPages(sizes ...int) *MockSource {
	pages := make(map[string]Page, len(sizes))
	next := 0
	for i, size := range sizes {
		page := Page{}
		for j := 0; j < size; j++ {
			page.Results = append(page.Results, testNode(fmt.Sprintf("n%d", next), content.KindBlock, false))
			next++
		}
		if i < len(sizes)-1 {
			page.HasMore = true
			page.NextCursor = fmt.Sprintf("c%d", i+1)
		}
		cursor := ""
		if i > 0 {
			cursor = fmt.Sprintf("c%d", i)
		}
		pages[cursor] = page
	}

	return &MockSource{ListFunc: func(_ context.Context, _ Target, cursor string) (Page, error) {
		page, ok := pages[cursor]
		if !ok {
			return Page{}, fmt.Errorf("unexpected cursor %q", cursor)
		}
		return page, nil
	}}
}

func ids(nodes []*content.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

// ============================================================================
// FetchAll Tests
// ============================================================================

func TestFetchAll_DrainsAllPagesInOrder(t *testing.T) {
	src := scriptedPages(2, 2, 1)

	result := FetchAll(context.Background(), src, Children("root"))

	require.NoError(t, result.Err)
	assert.Equal(t, []string{"n0", "n1", "n2", "n3", "n4"}, ids(result.Nodes))
	assert.Equal(t, 3, result.Requests)
	assert.Equal(t, []string{"", "c1", "c2"}, src.Cursors)
}

func TestFetchAll_SinglePage(t *testing.T) {
	result := FetchAll(context.Background(), scriptedPages(3), Rows("db"))

	require.NoError(t, result.Err)
	assert.Len(t, result.Nodes, 3)
	assert.Equal(t, 1, result.Requests)
}

func TestFetchAll_EmptyListing(t *testing.T) {
	result := FetchAll(context.Background(), scriptedPages(0), Children("leafy"))

	require.NoError(t, result.Err)
	assert.NotNil(t, result.Nodes)
	assert.Empty(t, result.Nodes)
}

func TestFetchAll_PartialResultOnError(t *testing.T) {
	boom := errors.New("boom")
	inner := scriptedPages(2, 2, 1)
	src := &MockSource{ListFunc: func(ctx context.Context, target Target, cursor string) (Page, error) {
		if cursor == "c1" {
			return Page{}, boom
		}
		return inner.ListFunc(ctx, target, cursor)
	}}

	result := FetchAll(context.Background(), src, Children("root"))

	assert.Equal(t, []string{"n0", "n1"}, ids(result.Nodes))
	assert.Equal(t, 2, result.Requests)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, boom)

	var fetchErr *FetchError
	require.ErrorAs(t, result.Err, &fetchErr)
	assert.Equal(t, Children("root"), fetchErr.Target)
	assert.Equal(t, "c1", fetchErr.Cursor)
	assert.Contains(t, fetchErr.Error(), "block_children:root at cursor c1")
}

func TestFetchAll_FirstPageFails(t *testing.T) {
	src := &MockSource{ListFunc: func(context.Context, Target, string) (Page, error) {
		return Page{}, errors.New("unreachable")
	}}

	result := FetchAll(context.Background(), src, Rows("db"))

	require.Error(t, result.Err)
	assert.NotNil(t, result.Nodes)
	assert.Empty(t, result.Nodes)
	assert.Equal(t, 1, result.Requests)
}

func TestFetchAll_MissingCursorStops(t *testing.T) {
	src := &MockSource{ListFunc: func(context.Context, Target, string) (Page, error) {
		return Page{
			Results: []*content.Node{testNode("a", content.KindBlock, false)},
			HasMore: true,
		}, nil
	}}

	result := FetchAll(context.Background(), src, Children("root"))

	assert.ErrorIs(t, result.Err, ErrMissingCursor)
	assert.Equal(t, []string{"a"}, ids(result.Nodes))
	assert.Equal(t, 1, result.Requests)
}

func TestFetchAll_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := scriptedPages(1)

	result := FetchAll(ctx, src, Children("root"))

	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Zero(t, result.Requests)
	assert.Empty(t, src.Cursors)
}

func TestTarget_String(t *testing.T) {
	assert.Equal(t, "block_children:abc", Children("abc").String())
	assert.Equal(t, "database_rows:abc", Rows("abc").String())
}

func TestFetchError_NoCursor(t *testing.T) {
	err := &FetchError{Target: Rows("db"), Err: errors.New("x")}
	assert.Equal(t, "fetch database_rows:db: x", err.Error())
}

// testNode builds a node from a minimal provider block object.
func testNode(id string, kind content.Kind, hasChildren bool) *content.Node {
	blockType := "paragraph"
	switch kind {
	case content.KindPage:
		blockType = "child_page"
	case content.KindDatabase:
		blockType = "child_database"
	}
	raw := fmt.Sprintf(`{"object":"block","id":%q,"type":%q,"has_children":%t}`, id, blockType, hasChildren)
	node, err := content.ParseNode([]byte(raw))
	if err != nil {
		panic(err)
	}
	return node
}
