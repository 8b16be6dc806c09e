// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package content

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Forest is the ordered set of top-level nodes produced by one fetch run.
type Forest []*Node

// Find returns the first node with the given id in document order: each
// top-level node, then its children, then its pages, depth-first.
func (f Forest) Find(id string) (*Node, bool) {
	for _, n := range f {
		if found, ok := find(n, id); ok {
			return found, true
		}
	}
	return nil, false
}

func find(n *Node, id string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	if n.ID == id {
		return n, true
	}
	for _, seq := range n.Descendants() {
		for _, d := range seq {
			if found, ok := find(d, id); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// Walk visits every node in document order with its distance in hops from
// its top-level ancestor. Returning false from fn skips that node's
// descendants.
func (f Forest) Walk(fn func(n *Node, depth int) bool) {
	for _, n := range f {
		walk(n, 0, fn)
	}
}

func walk(n *Node, depth int, fn func(*Node, int) bool) {
	if n == nil || !fn(n, depth) {
		return
	}
	for _, seq := range n.Descendants() {
		for _, d := range seq {
			walk(d, depth+1, fn)
		}
	}
}

// Count returns the number of nodes in the forest.
func (f Forest) Count() int {
	count := 0
	f.Walk(func(*Node, int) bool {
		count++
		return true
	})
	return count
}

// Depth returns the longest children/pages chain below any top-level node.
func (f Forest) Depth() int {
	deepest := 0
	f.Walk(func(_ *Node, depth int) bool {
		deepest = max(deepest, depth)
		return true
	})
	return deepest
}

// EncodeForest serializes f as a JSON array. A nil forest encodes as [].
func EncodeForest(f Forest) ([]byte, error) {
	if f == nil {
		f = Forest{}
	}
	data, err := json.Marshal([]*Node(f))
	if err != nil {
		return nil, fmt.Errorf("encode forest: %w", err)
	}
	return data, nil
}

// DecodeForest parses a serialized forest. Anything other than an array of
// node objects is reported as ErrMalformed.
func DecodeForest(data []byte) (Forest, error) {
	trimmed := bytes.TrimSpace(data)
	if !gjson.ValidBytes(trimmed) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	root := gjson.ParseBytes(trimmed)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: forest is not an array", ErrMalformed)
	}

	forest := make(Forest, 0)
	var parseErr error
	root.ForEach(func(_, item gjson.Result) bool {
		node, err := ParseNode([]byte(item.Raw))
		if err != nil {
			parseErr = fmt.Errorf("node %d: %w", len(forest), err)
			return false
		}
		forest = append(forest, node)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return forest, nil
}
