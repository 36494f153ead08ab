// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selector_test

import (
	"errors"
	"testing"

	"github.com/datacamp/protowhat/services/sct/internal/sctest"
	"github.com/datacamp/protowhat/services/sct/selector"
	"github.com/datacamp/protowhat/services/sct/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(opts ...selector.Option) *selector.Dispatcher {
	p := sctest.NewParser()
	return selector.NewDispatcher(p.Catalogue(), p, opts...)
}

func mustParse(t *testing.T, d *selector.Dispatcher, code string) tree.Node {
	t.Helper()
	n, err := d.Parse(code)
	require.NoError(t, err)
	return n
}

func kinds(nodes []tree.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Kind()
	}
	return out
}

// =============================================================================
// Selector
// =============================================================================

func TestSelector_RootIsNeverSelected(t *testing.T) {
	d := newDispatcher()
	root := mustParse(t, d, "1")

	target := selector.Target{Kind: "module", Strict: true}
	assert.Empty(t, selector.NewSelector(target, 10).Select(root))
}

func TestSelector_PriorityStopsDescent(t *testing.T) {
	d := newDispatcher()
	root := mustParse(t, d, "1 + 2 + 3")

	binop := selector.Target{Kind: "binop", Strict: true}

	// binop has priority 2: the outer binop is found, nested ones are not.
	got := selector.NewSelector(binop, 2).Select(root)
	require.Len(t, got, 1)
	text, _ := got[0].Text("1 + 2 + 3")
	assert.Equal(t, "1 + 2 + 3", text)

	// Raising the priority lets the selector look inside binops.
	got = selector.NewSelector(binop, 3).Select(root)
	assert.Len(t, got, 2)
}

func TestSelector_PreOrder(t *testing.T) {
	d := newDispatcher()
	root := mustParse(t, d, "a = b + 1")

	got := selector.NewSelector(selector.Target{}, 10).Select(root)
	assert.Equal(t, []string{"assign", "name", "binop", "name", "num"}, kinds(got))
}

func TestSelector_SelectAllIncludesItems(t *testing.T) {
	d := newDispatcher()
	root := mustParse(t, d, "1\n2")

	got := selector.NewSelector(selector.Target{Kind: "expr_stmt", Strict: true}, 1).SelectAll(root.Children())
	assert.Len(t, got, 2)
}

func TestTarget_Matches(t *testing.T) {
	cat := sctest.Catalogue()
	assign := cat.Node("assign")
	expr := cat.Node("expr_stmt")

	tests := []struct {
		name   string
		target selector.Target
		node   tree.Node
		want   bool
	}{
		{"strict same kind", selector.Target{Kind: "assign", Strict: true}, assign, true},
		{"strict other kind", selector.Target{Kind: "assign", Strict: true}, expr, false},
		{"family member", selector.Target{Kind: "stmt", Subkinds: []string{"assign", "expr_stmt"}}, expr, true},
		{"family with name", selector.Target{Kind: "stmt", Subkinds: []string{"assign", "expr_stmt"}, Name: "assign"}, expr, false},
		{"any with name", selector.Target{Name: "assign"}, assign, true},
		{"any without name", selector.Target{}, expr, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.Matches(tt.node))
		})
	}
}

// =============================================================================
// Dispatcher
// =============================================================================

func TestDispatcher_Find(t *testing.T) {
	d := newDispatcher()
	root := mustParse(t, d, "x = 1\nx + 2\n3")

	assert.Len(t, d.Find("Expr", root), 2)
	assert.Len(t, d.Find("Assign", root), 1)
	assert.Len(t, d.Find("Stmt", root), 3, "family selects every member")
	assert.Len(t, d.Find("name", root), 2, "names sit below lower-priority nodes")
	assert.Len(t, d.Find("Num", root), 3)
	assert.Empty(t, d.Find("Num", root, selector.AtPriority(1)), "statements stop a priority-1 search")
	assert.Empty(t, d.Find("NoSuchKind", root))
}

type params map[string]any

func TestDispatcher_Select(t *testing.T) {
	d := newDispatcher()
	root := mustParse(t, d, "x = 1 + 2")
	mapping := map[string]any{
		"a":   map[string]any{"b": []any{"x", "y"}},
		"ast": root,
		"7":   "numeric key",
	}

	tests := []struct {
		name string
		path string
		node any
		want any
	}{
		{"node fields and indices", "body.0.value.right.n", root, 2},
		{"index out of range", "body.3", root, nil},
		{"missing field", "body.0.nope.x", root, nil},
		{"mapping keys and list index", "a.b.1", mapping, "y"},
		{"numeric mapping key", "7", mapping, "numeric key"},
		{"mapping into a tree", "ast.body.0.value.left.n", mapping, 1},
		{"missing key", "a.c", mapping, nil},
		{"named mapping type", "a.b.0", params{"a": params{"b": []any{"x"}}}, "x"},
		{"scalar has no fields", "a.b.1.z", mapping, nil},
		{"empty steps are skipped", "a..b.0", mapping, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Select(tt.path, tt.node))
		})
	}
}

func TestDispatcher_ParseSafe(t *testing.T) {
	d := newDispatcher()

	_, err := d.Parse("1 +")
	require.Error(t, err)
	assert.True(t, selector.IsParseError(err))
	assert.False(t, errors.Is(err, selector.ErrUnsafeParse))

	var syntax *sctest.SyntaxError
	assert.True(t, errors.As(err, &syntax), "cause is kept")
}

func TestDispatcher_ParseUnsafe(t *testing.T) {
	d := newDispatcher(selector.WithUnsafeParsing())
	assert.False(t, d.SafeParsing())

	_, err := d.Parse("1 $ 2")
	require.Error(t, err)
	assert.ErrorIs(t, err, selector.ErrUnsafeParse)
	assert.True(t, selector.IsParseError(err))
}

func TestDispatcher_NoParser(t *testing.T) {
	d := selector.NewDispatcher(nil, nil)

	n, err := d.Parse("anything")
	assert.Nil(t, n)
	assert.ErrorIs(t, err, selector.ErrNoParser)
	assert.Empty(t, d.Find("Expr", tree.New("module")))

	_, ok := d.Describe(tree.New("x"), "{{.node_name}}", "", selector.NoIndex, nil)
	assert.False(t, ok)
}

func TestDispatcher_Describe(t *testing.T) {
	d := newDispatcher()
	cat := sctest.Catalogue()
	bin := cat.Node("binop")

	tests := []struct {
		name  string
		tmpl  string
		field string
		index int
		vars  map[string]any
		want  string
	}{
		{"node only", "{{.index}}{{.node_name}}", "", selector.NoIndex, nil, "binary operation"},
		{"with index", "{{.index}}{{.node_name}}", "", 1, nil, "second binary operation"},
		{"field with index", "{{.index}}{{.field_name}} of the {{.node_name}}", "left", 0, nil,
			"first entry in the left operand of the binary operation"},
		{"extra vars", "Check the {{.ast_path}}. Could not find the {{.index}}{{.node_name}}.", "", 10,
			map[string]any{"ast_path": "expression"}, "Check the expression. Could not find the 11th binary operation."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Describe(bin, tt.tmpl, tt.field, tt.index, tt.vars)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type failingSpeaker struct{}

func (failingSpeaker) Describe(tree.Node, string, string, map[string]any) (string, error) {
	return "", errors.New("boom")
}

func TestDispatcher_DescribeSpeakerFailure(t *testing.T) {
	d := newDispatcher(selector.WithSpeaker(failingSpeaker{}))
	_, ok := d.Describe(tree.New("x"), "{{.node_name}}", "", selector.NoIndex, nil)
	assert.False(t, ok)
}
