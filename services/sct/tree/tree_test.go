// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree_test

import (
	"testing"

	"github.com/datacamp/protowhat/services/sct/internal/sctest"
	"github.com/datacamp/protowhat/services/sct/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Node
// =============================================================================

func TestGeneric_FieldsAndChildren(t *testing.T) {
	cat := sctest.Catalogue()
	left := cat.Node("num", tree.Field{Name: "n", Value: 1})
	right := cat.Node("num", tree.Field{Name: "n", Value: 2})
	bin := cat.Node("binop",
		tree.Field{Name: "left", Value: left},
		tree.Field{Name: "op", Value: "+"},
		tree.Field{Name: "right", Value: right},
	)

	assert.Equal(t, "binop", bin.Kind())
	assert.Equal(t, 2, bin.Priority())
	assert.Equal(t, []string{"left", "op", "right"}, bin.FieldNames())

	op, ok := bin.Field("op")
	require.True(t, ok)
	assert.Equal(t, "+", op)

	_, ok = bin.Field("missing")
	assert.False(t, ok)

	children := bin.Children()
	require.Len(t, children, 2)
	assert.True(t, tree.Same(left, children[0]))
	assert.True(t, tree.Same(right, children[1]))
}

func TestGeneric_PriorityOutsideCatalogue(t *testing.T) {
	assert.Equal(t, 0, tree.New("anything").Priority())
	assert.Equal(t, 0, sctest.Catalogue().Node("unknown_kind").Priority())
}

func TestGeneric_WithPositionCopies(t *testing.T) {
	n := tree.New("x")
	located := n.WithPosition(tree.Position{LineStart: 1, LineEnd: 1, ColumnEnd: 3})

	_, ok := n.Position()
	assert.False(t, ok, "original must stay unlocated")
	pos, ok := located.Position()
	require.True(t, ok)
	assert.Equal(t, 3, pos.ColumnEnd)
}

func TestSlice(t *testing.T) {
	code := "a = 1\nb = a + 22\nc"
	tests := []struct {
		name string
		pos  tree.Position
		want string
		ok   bool
	}{
		{"single line", tree.Position{LineStart: 2, ColumnStart: 4, LineEnd: 2, ColumnEnd: 9}, "a + 22", true},
		{"multi line", tree.Position{LineStart: 1, ColumnStart: 4, LineEnd: 2, ColumnEnd: 0}, "1\nb", true},
		{"whole last line", tree.Position{LineStart: 3, ColumnStart: 0, LineEnd: 3, ColumnEnd: 0}, "c", true},
		{"line out of range", tree.Position{LineStart: 4, LineEnd: 4}, "", false},
		{"reversed", tree.Position{LineStart: 2, ColumnStart: 5, LineEnd: 2, ColumnEnd: 1}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tree.Slice(code, tt.pos)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestText_FromParser(t *testing.T) {
	code := "x = 1\ny = x + 2"
	root, err := sctest.NewParser().Parse(code)
	require.NoError(t, err)

	stmts := root.Children()
	require.Len(t, stmts, 2)
	text, ok := stmts[1].Text(code)
	require.True(t, ok)
	assert.Equal(t, "y = x + 2", text)
}

// =============================================================================
// Catalogue
// =============================================================================

func TestCatalogue_Lookup(t *testing.T) {
	cat := sctest.Catalogue()

	info, ok := cat.Lookup("Expr")
	require.True(t, ok)
	assert.Equal(t, "expr_stmt", info.Kind)

	info, ok = cat.Lookup("stmt")
	require.True(t, ok)
	assert.True(t, info.IsFamily())

	_, ok = cat.Lookup("Nope")
	assert.False(t, ok)
}

func TestCatalogue_Phrases(t *testing.T) {
	cat := sctest.Catalogue()
	assert.Equal(t, "expression", cat.DisplayName("expr_stmt"))
	assert.Equal(t, "some kind", cat.DisplayName("some_kind"))
	assert.Equal(t, "left operand", cat.FieldName("binop", "left"))
	assert.Equal(t, "return type", cat.FieldName("binop", "return_type"))
}

func TestCatalogue_DefaultPriority(t *testing.T) {
	cat := tree.NewCatalogue("x").WithDefaultPriority(7)
	assert.Equal(t, 7, cat.Priority("whatever"))
}

// =============================================================================
// Repr / Walk / Wrap
// =============================================================================

func TestRepr_IgnoresPositions(t *testing.T) {
	p := sctest.NewParser()
	a, err := p.Parse("1 + 1")
	require.NoError(t, err)
	b, err := p.Parse("\n   1   +   1")
	require.NoError(t, err)
	c, err := p.Parse("3 + 3")
	require.NoError(t, err)

	assert.Equal(t, tree.Repr(a), tree.Repr(b))
	assert.NotEqual(t, tree.Repr(a), tree.Repr(c))
	assert.Equal(t,
		"module(body = [expr_stmt(value = binop(left = num(n = 1), op = '+', right = num(n = 1)))])",
		tree.Repr(a))
}

func TestWalk_SkipsSubtrees(t *testing.T) {
	root, err := sctest.NewParser().Parse("a = 1 + 2\nb")
	require.NoError(t, err)

	var kinds []string
	tree.Walk(root, func(n tree.Node) bool {
		kinds = append(kinds, n.Kind())
		return n.Kind() != "binop"
	})
	assert.Equal(t, []string{"module", "assign", "name", "binop", "expr_stmt", "name"}, kinds)
}

func TestWrap(t *testing.T) {
	cat := sctest.Catalogue()
	n := cat.Node("num", tree.Field{Name: "n", Value: 1})

	assert.Nil(t, tree.Wrap(nil, cat))
	assert.True(t, tree.Same(n, tree.Wrap(n, cat)))

	list := tree.Wrap([]tree.Node{n}, cat)
	assert.Equal(t, tree.KindList, list.Kind())
	assert.Len(t, list.Children(), 1)

	scalar := tree.Wrap("+", cat)
	assert.Equal(t, tree.KindValue, scalar.Kind())
	v, _ := scalar.Field("value")
	assert.Equal(t, "+", v)
}

// =============================================================================
// Codec
// =============================================================================

func TestDumpLoad_RoundTrip(t *testing.T) {
	root, err := sctest.NewParser().Parse("total = price * 3\ntotal - 1")
	require.NoError(t, err)

	for _, f := range []tree.Format{tree.FormatJSON, tree.FormatYAML, tree.FormatMsgpack} {
		t.Run(string(f), func(t *testing.T) {
			first, err := tree.Dump(root, f)
			require.NoError(t, err)

			loaded, err := tree.Load(first, f, sctest.Catalogue())
			require.NoError(t, err)

			second, err := tree.Dump(loaded, f)
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.Equal(t, tree.Repr(root), tree.Repr(loaded))

			wantPos, _ := root.Children()[1].Position()
			gotPos, ok := loaded.Children()[1].Position()
			require.True(t, ok)
			assert.Equal(t, wantPos, gotPos)
			assert.Equal(t, 1, loaded.Children()[1].Priority())
		})
	}
}

func TestDump_JSONShape(t *testing.T) {
	n := tree.New("num", tree.Field{Name: "n", Value: 1}).
		WithPosition(tree.Position{LineStart: 1, ColumnStart: 0, LineEnd: 1, ColumnEnd: 0})

	out, err := tree.Dump(n, tree.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t,
		`{"type":"num","data":{"n":1},"position":{"line_start":1,"column_start":0,"line_end":1,"column_end":0}}`,
		string(out))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		f    tree.Format
	}{
		{"not an object", `[1, 2]`, tree.FormatJSON},
		{"missing type", `{"data":{}}`, tree.FormatJSON},
		{"bad position", `{"type":"x","position":{"line_start":"a"}}`, tree.FormatJSON},
		{"truncated", `{"type":"x"`, tree.FormatJSON},
		{"yaml scalar", `hello`, tree.FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tree.Load([]byte(tt.data), tt.f, nil)
			assert.ErrorIs(t, err, tree.ErrMalformedDump)
		})
	}

	_, err := tree.Load([]byte(`{}`), tree.Format("xml"), nil)
	assert.ErrorIs(t, err, tree.ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	f, err := tree.ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, tree.FormatYAML, f)

	_, err = tree.ParseFormat("xml")
	assert.ErrorIs(t, err, tree.ErrUnknownFormat)
}
