// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package selector finds nodes in syntax trees and describes them.
package selector

import (
	"slices"

	"github.com/datacamp/protowhat/services/sct/tree"
)

// Target says which nodes a Selector collects.
//
// Description:
//
//	A strict target matches nodes whose kind equals Kind. A non-strict
//	target matches nodes whose kind is Kind or one of Subkinds (any kind
//	when Kind is empty), further restricted to kind Name when Name is set.
type Target struct {
	Kind     string
	Subkinds []string
	Name     string
	Strict   bool
}

// Matches reports whether n is selected by t.
func (t Target) Matches(n tree.Node) bool {
	kind := n.Kind()
	if t.Strict {
		return kind == t.Kind
	}
	if t.Kind != "" && kind != t.Kind && !slices.Contains(t.Subkinds, kind) {
		return false
	}
	return t.Name == "" || kind == t.Name
}

// Selector collects the nodes matching a target in pre-order.
//
// Description:
//
//	The root passed to Select is never itself a candidate. Below it, every
//	node is tested against the target; descent into a node's children
//	happens only when the selector's priority is strictly greater than the
//	node's. With the usual priority equal to the target kind's priority, a
//	search for statements does not look inside nested statements or
//	definitions.
//
// Thread Safety:
//
//	A Selector is a value; Select does not retain state between calls.
type Selector struct {
	target   Target
	priority int
}

// NewSelector creates a selector for target that descends through nodes
// of at most the given priority.
func NewSelector(target Target, priority int) Selector {
	return Selector{target: target, priority: priority}
}

// Select returns the matches below root in pre-order.
func (s Selector) Select(root tree.Node) []tree.Node {
	if root == nil {
		return nil
	}
	var out []tree.Node
	for _, c := range root.Children() {
		out = s.visit(c, out)
	}
	return out
}

// SelectAll treats each of nodes as a candidate, then searches below it.
func (s Selector) SelectAll(nodes []tree.Node) []tree.Node {
	var out []tree.Node
	for _, n := range nodes {
		if n != nil {
			out = s.visit(n, out)
		}
	}
	return out
}

func (s Selector) visit(n tree.Node, out []tree.Node) []tree.Node {
	if s.target.Matches(n) {
		out = append(out, n)
	}
	if s.priority > n.Priority() {
		for _, c := range n.Children() {
			out = s.visit(c, out)
		}
	}
	return out
}
