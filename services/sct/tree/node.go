// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tree defines the syntax tree model checks operate on.
//
// Every parser collaborator produces values satisfying Node. The package
// ships one concrete implementation, Generic, a tagged node with an ordered
// list of named fields whose priority comes from a Catalogue.
package tree

import (
	"strings"
)

// Position locates a node in the source text.
//
// Lines are 1-based. Columns are 0-based byte offsets and ColumnEnd is
// inclusive, so a node spanning "1 + 1" on the first line is
// {LineStart: 1, ColumnStart: 0, LineEnd: 1, ColumnEnd: 4}.
type Position struct {
	LineStart   int `json:"line_start" yaml:"line_start" msgpack:"line_start"`
	ColumnStart int `json:"column_start" yaml:"column_start" msgpack:"column_start"`
	LineEnd     int `json:"line_end" yaml:"line_end" msgpack:"line_end"`
	ColumnEnd   int `json:"column_end" yaml:"column_end" msgpack:"column_end"`
}

// Node is the uniform view over syntax tree nodes.
//
// Description:
//
//	Node exposes what selection, description and highlighting need: the
//	kind tag, ordered named fields, the node's children, its source text and
//	position, and its selection priority. Field values are one of Node,
//	[]Node, a scalar (string, bool, number) or nil.
//
// Thread Safety:
//
//	Implementations must be immutable once built so that trees can be
//	shared across goroutines grading different submissions.
type Node interface {
	// Kind returns the node type tag, e.g. "binary_operator".
	Kind() string

	// Priority returns the selection priority. Higher values are nested
	// deeper; a search for a kind never descends below nodes of a higher
	// priority than the target.
	Priority() int

	// FieldNames returns the field names in declaration order.
	FieldNames() []string

	// Field returns the value of the named field.
	Field(name string) (any, bool)

	// Children returns the direct child nodes in field order.
	Children() []Node

	// Position returns the node's location, if known.
	Position() (Position, bool)

	// Text returns the slice of code covered by the node, if known.
	Text(code string) (string, bool)
}

// Field is one named slot of a Generic node.
type Field struct {
	Name  string
	Value any
}

// Generic is the tagged-variant node used by every parser adapter.
//
// Description:
//
//	A Generic is built once and never mutated. Builder methods such as
//	WithPosition return a copy.
type Generic struct {
	kind      string
	fields    []Field
	pos       *Position
	catalogue *Catalogue
}

// New creates a node of the given kind outside any catalogue. Its priority
// is 0.
func New(kind string, fields ...Field) *Generic {
	return &Generic{kind: kind, fields: append([]Field(nil), fields...)}
}

// WithPosition returns a copy of the node located at pos.
func (g *Generic) WithPosition(pos Position) *Generic {
	cp := *g
	cp.pos = &pos
	return &cp
}

// Catalogue returns the catalogue the node was built in, or nil.
func (g *Generic) Catalogue() *Catalogue {
	return g.catalogue
}

// Kind implements Node.
func (g *Generic) Kind() string {
	return g.kind
}

// Priority implements Node.
func (g *Generic) Priority() int {
	if g.catalogue == nil {
		return 0
	}
	return g.catalogue.Priority(g.kind)
}

// FieldNames implements Node.
func (g *Generic) FieldNames() []string {
	names := make([]string, len(g.fields))
	for i, f := range g.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the ordered fields.
func (g *Generic) Fields() []Field {
	return append([]Field(nil), g.fields...)
}

// Field implements Node.
func (g *Generic) Field(name string) (any, bool) {
	for _, f := range g.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Children implements Node.
func (g *Generic) Children() []Node {
	var out []Node
	for _, f := range g.fields {
		out = appendNodes(out, f.Value)
	}
	return out
}

// Position implements Node.
func (g *Generic) Position() (Position, bool) {
	if g.pos == nil {
		return Position{}, false
	}
	return *g.pos, true
}

// Text implements Node.
func (g *Generic) Text(code string) (string, bool) {
	if g.pos == nil {
		return "", false
	}
	return Slice(code, *g.pos)
}

func appendNodes(out []Node, v any) []Node {
	switch val := v.(type) {
	case Node:
		if val != nil {
			out = append(out, val)
		}
	case []Node:
		for _, n := range val {
			if n != nil {
				out = append(out, n)
			}
		}
	case []any:
		for _, item := range val {
			out = appendNodes(out, item)
		}
	}
	return out
}

// Slice returns the text of code covered by pos.
//
// Description:
//
//	Lines are 1-based, columns are 0-based byte offsets and the end column
//	is inclusive. Out of range positions yield false.
func Slice(code string, pos Position) (string, bool) {
	lines := strings.SplitAfter(code, "\n")
	if pos.LineStart < 1 || pos.LineEnd < pos.LineStart || pos.LineEnd > len(lines) {
		return "", false
	}

	first := lines[pos.LineStart-1]
	if pos.ColumnStart < 0 || pos.ColumnStart > len(first) {
		return "", false
	}
	last := lines[pos.LineEnd-1]
	end := pos.ColumnEnd + 1
	if end > len(last) {
		end = len(last)
	}

	if pos.LineStart == pos.LineEnd {
		if end < pos.ColumnStart {
			return "", false
		}
		return first[pos.ColumnStart:end], true
	}

	var b strings.Builder
	b.WriteString(first[pos.ColumnStart:])
	for _, l := range lines[pos.LineStart : pos.LineEnd-1] {
		b.WriteString(l)
	}
	b.WriteString(last[:end])
	return b.String(), true
}

// Same reports whether a and b are the same node value.
//
// Only comparable node implementations (pointers, as produced by every
// adapter in this module) are compared by identity; others never match.
func Same(a, b Node) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
