// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package content defines the mirrored content model: provider nodes with
// their optional expanded descendants, the forest persisted as a snapshot,
// and lookup over that forest.
//
// A Node keeps the provider object verbatim (compact JSON, original key
// order). Expanded descendants are held beside it and only appear in the
// serialized form as trailing "children" / "pages" keys, so a node that was
// never expanded serializes exactly as the provider returned it.
package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind classifies a node for traversal.
type Kind string

const (
	// KindPage is a page, either a child_page block or a database row.
	KindPage Kind = "page"

	// KindDatabase is a database, either a child_database block or a database object.
	KindDatabase Kind = "database"

	// KindBlock is any other block. Blocks with HasChildren set are still expanded.
	KindBlock Kind = "block"
)

const (
	childrenKey = "children"
	pagesKey    = "pages"
)

// ErrMalformed is returned when a document is not a node object or an array of them.
var ErrMalformed = errors.New("malformed content document")

// Node is one unit of mirrored content.
//
// Children and Pages are nil when the node was not expanded (leaf, depth
// limit, or already visited in the run) and non-nil once an expansion ran,
// even if it produced nothing.
type Node struct {
	ID          string
	Kind        Kind
	HasChildren bool

	// Payload is the provider object without the children/pages keys.
	Payload json.RawMessage

	Children []*Node
	Pages    []*Node
}

// ParseNode decodes one provider or snapshot object. Trailing "children" and
// "pages" arrays are decoded recursively into the node's descendants.
func ParseNode(raw []byte) (*Node, error) {
	trimmed := bytes.TrimSpace(raw)
	if !gjson.ValidBytes(trimmed) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	if !gjson.ParseBytes(trimmed).IsObject() {
		return nil, fmt.Errorf("%w: node is not an object", ErrMalformed)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	payload := compact.Bytes()

	node := &Node{}
	var err error
	if node.Children, payload, err = detach(payload, childrenKey); err != nil {
		return nil, err
	}
	if node.Pages, payload, err = detach(payload, pagesKey); err != nil {
		return nil, err
	}
	node.Payload = payload

	fields := gjson.GetManyBytes(payload, "id", "object", "type", "has_children")
	node.ID = fields[0].String()
	node.Kind = classify(fields[1].String(), fields[2].String())
	node.HasChildren = fields[3].Bool()
	return node, nil
}

func classify(object, blockType string) Kind {
	switch {
	case blockType == "child_page" || object == "page":
		return KindPage
	case blockType == "child_database" || object == "database":
		return KindDatabase
	default:
		return KindBlock
	}
}

// detach pulls an expanded descendant array out of payload. A key holding
// anything other than an array is provider data and stays in place.
func detach(payload []byte, key string) ([]*Node, []byte, error) {
	field := gjson.GetBytes(payload, key)
	if !field.IsArray() {
		return nil, payload, nil
	}

	nodes := make([]*Node, 0)
	var parseErr error
	field.ForEach(func(_, item gjson.Result) bool {
		child, err := ParseNode([]byte(item.Raw))
		if err != nil {
			parseErr = fmt.Errorf("%s[%d]: %w", key, len(nodes), err)
			return false
		}
		nodes = append(nodes, child)
		return true
	})
	if parseErr != nil {
		return nil, nil, parseErr
	}

	stripped, err := sjson.DeleteBytes(payload, key)
	if err != nil {
		return nil, nil, fmt.Errorf("strip %s: %w", key, err)
	}
	return nodes, stripped, nil
}

// MarshalJSON writes the provider payload followed by any expanded descendants.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := []byte("{}")
	if len(bytes.TrimSpace(n.Payload)) > 0 {
		out = bytes.Clone(n.Payload)
	}

	var err error
	if n.Children != nil {
		if out, err = attach(out, childrenKey, n.Children); err != nil {
			return nil, err
		}
	}
	if n.Pages != nil {
		if out, err = attach(out, pagesKey, n.Pages); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func attach(payload []byte, key string, nodes []*Node) ([]byte, error) {
	raw, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", key, err)
	}
	out, err := sjson.SetRawBytes(payload, key, raw)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", key, err)
	}
	return out, nil
}

// UnmarshalJSON is the json.Unmarshaler counterpart of ParseNode.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := ParseNode(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

// WithChildren returns a copy of n carrying children.
func (n *Node) WithChildren(children []*Node) *Node {
	c := *n
	c.Children = children
	return &c
}

// WithPages returns a copy of n carrying database rows.
func (n *Node) WithPages(pages []*Node) *Node {
	c := *n
	c.Pages = pages
	return &c
}

// Descendants returns every descendant sequence of n in document order:
// children first, then database rows.
func (n *Node) Descendants() [][]*Node {
	return [][]*Node{n.Children, n.Pages}
}
