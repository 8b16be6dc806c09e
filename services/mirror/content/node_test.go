// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package content

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// ParseNode Tests
// ============================================================================

func TestParseNode_Classification(t *testing.T) {
	tests := []struct {
		name            string
		raw             string
		wantKind        Kind
		wantHasChildren bool
	}{
		{"child page block", `{"object":"block","id":"a","type":"child_page","has_children":true}`, KindPage, true},
		{"child database block", `{"object":"block","id":"a","type":"child_database","has_children":false}`, KindDatabase, false},
		{"database row", `{"object":"page","id":"a","properties":{}}`, KindPage, false},
		{"database object", `{"object":"database","id":"a","title":[]}`, KindDatabase, false},
		{"paragraph with children", `{"object":"block","id":"a","type":"paragraph","has_children":true}`, KindBlock, true},
		{"plain paragraph", `{"object":"block","id":"a","type":"paragraph"}`, KindBlock, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseNode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, "a", node.ID)
			assert.Equal(t, tt.wantKind, node.Kind)
			assert.Equal(t, tt.wantHasChildren, node.HasChildren)
			assert.Nil(t, node.Children)
			assert.Nil(t, node.Pages)
		})
	}
}

func TestParseNode_Rejects(t *testing.T) {
	for _, raw := range []string{``, `not json`, `[]`, `"text"`, `42`, `null`} {
		_, err := ParseNode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, "input %q", raw)
	}
}

func TestParseNode_CompactsPayload(t *testing.T) {
	node, err := ParseNode([]byte("{\n  \"id\": \"a\",\n  \"object\": \"block\"\n}"))
	require.NoError(t, err)
	assert.Equal(t, `{"id":"a","object":"block"}`, string(node.Payload))
}

func TestParseNode_NonArrayChildrenStayInPayload(t *testing.T) {
	node, err := ParseNode([]byte(`{"id":"a","children":"provider text"}`))
	require.NoError(t, err)
	assert.Nil(t, node.Children)
	assert.Equal(t, `{"id":"a","children":"provider text"}`, string(node.Payload))
}

func TestParseNode_BadNestedChild(t *testing.T) {
	_, err := ParseNode([]byte(`{"id":"a","children":[{"id":"b"},7]}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

// ============================================================================
// Serialization Tests
// ============================================================================

func TestMarshal_UnexpandedNodeIsPayload(t *testing.T) {
	raw := `{"z":1,"id":"a","object":"block","type":"quote","a":{"nested":[1,2]}}`
	node, err := ParseNode([]byte(raw))
	require.NoError(t, err)

	out, err := json.Marshal(node)
	require.NoError(t, err)
	assert.Equal(t, raw, string(out))
}

func TestMarshal_AppendsDescendantsAfterPayload(t *testing.T) {
	node, err := ParseNode([]byte(`{"z":1,"id":"db","type":"child_database","a":true}`))
	require.NoError(t, err)
	expanded := node.WithPages([]*Node{testNode("row", KindPage, false)})

	out, err := json.Marshal(expanded)
	require.NoError(t, err)
	assert.Equal(t,
		`{"z":1,"id":"db","type":"child_database","a":true,"pages":[{"object":"block","id":"row","type":"child_page","has_children":false}]}`,
		string(out))
}

func TestMarshal_EmptyExpansionIsKept(t *testing.T) {
	node := testNode("p", KindPage, false).WithChildren([]*Node{})

	out, err := json.Marshal(node)
	require.NoError(t, err)

	back, err := ParseNode(out)
	require.NoError(t, err)
	require.NotNil(t, back.Children)
	assert.Empty(t, back.Children)
	assert.Nil(t, back.Pages)
}

func TestUnmarshalJSON(t *testing.T) {
	var node Node
	err := json.Unmarshal([]byte(`{"id":"a","type":"child_page","children":[{"id":"b"}]}`), &node)
	require.NoError(t, err)
	assert.Equal(t, KindPage, node.Kind)
	require.Len(t, node.Children, 1)
	assert.Equal(t, "b", node.Children[0].ID)
	assert.Equal(t, `{"id":"a","type":"child_page"}`, string(node.Payload))
}

func TestWithChildren_DoesNotMutateOriginal(t *testing.T) {
	original := testNode("p", KindPage, true)
	expanded := original.WithChildren([]*Node{testNode("c", KindBlock, false)})

	assert.Nil(t, original.Children)
	assert.Len(t, expanded.Children, 1)
	assert.Equal(t, original.ID, expanded.ID)
}

// testNode builds a node from a minimal provider block object.
func testNode(id string, kind Kind, hasChildren bool) *Node {
	blockType := "paragraph"
	switch kind {
	case KindPage:
		blockType = "child_page"
	case KindDatabase:
		blockType = "child_database"
	}
	raw := fmt.Sprintf(`{"object":"block","id":%q,"type":%q,"has_children":%t}`, id, blockType, hasChildren)
	node, err := ParseNode([]byte(raw))
	if err != nil {
		panic(err)
	}
	return node
}
