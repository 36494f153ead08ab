// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// KindList tags the synthetic node wrapping a list field value.
	KindList = "list"

	// KindValue tags the synthetic node wrapping a scalar field value.
	KindValue = "value"
)

// Walk visits n and its descendants depth-first in field order. Returning
// false from fn skips the node's subtree.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}

// Repr renders a structural representation of n that ignores positions.
//
// Two trees with equal Repr have the same kinds, field names and scalar
// values in the same order:
//
//	binary_operator(left = integer(value = '1'), operator = '+', right = integer(value = '1'))
func Repr(n Node) string {
	var b strings.Builder
	writeRepr(&b, n)
	return b.String()
}

func writeRepr(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("None")
	case Node:
		b.WriteString(val.Kind())
		b.WriteByte('(')
		first := true
		for _, name := range val.FieldNames() {
			fv, _ := val.Field(name)
			if fv == nil {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(name)
			b.WriteString(" = ")
			writeRepr(b, fv)
		}
		b.WriteByte(')')
	case []Node:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, item)
		}
		b.WriteByte(']')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, item)
		}
		b.WriteByte(']')
	case string:
		q := strconv.Quote(val)
		b.WriteString("'")
		b.WriteString(q[1 : len(q)-1])
		b.WriteString("'")
	default:
		fmt.Fprintf(b, "%v", val)
	}
}

// Wrap turns a field value into a node.
//
// Description:
//
//	Nodes are returned unchanged. Lists become a KindList node whose
//	"items" field holds the elements, scalars become a KindValue node. The
//	synthetic node spans its elements when they are located. nil yields nil.
func Wrap(v any, c *Catalogue) Node {
	switch val := v.(type) {
	case nil:
		return nil
	case Node:
		return val
	case []Node:
		g := c.Node(KindList, Field{Name: "items", Value: val})
		if pos, ok := Span(val); ok {
			g = g.WithPosition(pos)
		}
		return g
	case []any:
		return c.Node(KindList, Field{Name: "items", Value: val})
	}
	return c.Node(KindValue, Field{Name: "value", Value: v})
}

// Span returns the position covering all located nodes.
func Span(nodes []Node) (Position, bool) {
	var out Position
	found := false
	for _, n := range nodes {
		if n == nil {
			continue
		}
		p, ok := n.Position()
		if !ok {
			continue
		}
		if !found {
			out = p
			found = true
			continue
		}
		if p.LineStart < out.LineStart || (p.LineStart == out.LineStart && p.ColumnStart < out.ColumnStart) {
			out.LineStart, out.ColumnStart = p.LineStart, p.ColumnStart
		}
		if p.LineEnd > out.LineEnd || (p.LineEnd == out.LineEnd && p.ColumnEnd > out.ColumnEnd) {
			out.LineEnd, out.ColumnEnd = p.LineEnd, p.ColumnEnd
		}
	}
	return out, found
}
