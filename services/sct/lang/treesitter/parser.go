// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package treesitter adapts tree-sitter grammars to the checking engine.
//
// A Parser materializes tree-sitter syntax trees into tree.Generic nodes
// so that selection, description and highlighting work the same for every
// grammar:
//
//   - named children with a field name become that field; a field the
//     catalogue lists in KindInfo.ListFields is always a list, possibly
//     empty, and any other field that repeats becomes a list
//   - named children without a field name go into the "children" list
//   - anonymous tokens with a field name (operators) become string fields
//   - leaf nodes carry their source in the "text" field
//
// Comments and other extras are dropped, so they never affect tree
// comparison.
package treesitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/datacamp/protowhat/services/sct/selector"
	"github.com/datacamp/protowhat/services/sct/tree"
)

const (
	// DefaultMaxFileSize is the largest submission parsed (1MB).
	DefaultMaxFileSize = 1 * 1024 * 1024

	// WarnFileSize is the size above which parsing logs a warning (256KB).
	WarnFileSize = 256 * 1024

	// FieldChildren holds named children that have no field name.
	FieldChildren = "children"

	// FieldText holds the source of leaf nodes.
	FieldText = "text"
)

var (
	// ErrUnknownGrammar is returned by Lookup for unsupported languages.
	ErrUnknownGrammar = errors.New("unknown grammar")

	// ErrFileTooLarge is returned for code above the parser's size limit.
	ErrFileTooLarge = errors.New("code exceeds maximum size limit")

	// ErrInvalidContent is returned for code that is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")
)

// Option configures a Parser.
type Option func(*Parser)

// WithMaxFileSize sets the maximum code size the parser accepts.
//
// Example:
//
//	p := treesitter.NewParser(treesitter.Python(), treesitter.WithMaxFileSize(64*1024))
func WithMaxFileSize(bytes int64) Option {
	return func(p *Parser) {
		p.maxFileSize = bytes
	}
}

// Parser parses code of one grammar into tree.Generic nodes.
//
// Thread Safety:
//
//	Safe for concurrent use. Each call creates its own tree-sitter parser.
type Parser struct {
	grammar     Grammar
	maxFileSize int64
}

// NewParser creates a parser for g.
func NewParser(g Grammar, opts ...Option) *Parser {
	p := &Parser{grammar: g, maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Grammar returns the parser's grammar.
func (p *Parser) Grammar() Grammar {
	return p.grammar
}

// Parse implements selector.Parser.
func (p *Parser) Parse(code string) (tree.Node, error) {
	return p.ParseContext(context.Background(), code)
}

// ParseContext parses code.
//
// Description:
//
//	The whole tree is materialized and the tree-sitter tree released
//	before returning. Code that tree-sitter could only parse with error
//	recovery fails with a *selector.ParseError locating the first error
//	or missing node.
//
// Outputs:
//
//	tree.Node - The root node.
//	error     - ErrFileTooLarge, ErrInvalidContent, *selector.ParseError,
//	            or the context error.
func (p *Parser) ParseContext(ctx context.Context, code string) (tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if int64(len(code)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(code), p.maxFileSize)
	}
	if len(code) > WarnFileSize {
		slog.Warn("parsing large submission",
			slog.String("language", p.grammar.Name),
			slog.Int("size_bytes", len(code)))
	}
	content := []byte(code)
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: code is not valid UTF-8", ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(p.grammar.Language)

	st, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer st.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := st.RootNode()
	if root == nil {
		return nil, &selector.ParseError{Message: "tree-sitter returned no root node"}
	}
	if root.HasError() {
		return nil, syntaxError(root)
	}

	b := builder{src: content, lines: lineStarts(content), cat: p.grammar.Catalogue}
	return b.build(root), nil
}

// Dispatcher returns a dispatcher parsing with p.
func (p *Parser) Dispatcher(opts ...selector.Option) *selector.Dispatcher {
	return selector.NewDispatcher(p.grammar.Catalogue, p, opts...)
}

// NewDispatcher returns a dispatcher for g with a default parser.
func NewDispatcher(g Grammar, opts ...selector.Option) *selector.Dispatcher {
	return NewParser(g).Dispatcher(opts...)
}

// syntaxError locates the first error or missing node below root.
func syntaxError(root *sitter.Node) *selector.ParseError {
	bad := firstError(root)
	if bad == nil {
		return &selector.ParseError{Message: "invalid syntax"}
	}
	pt := bad.StartPoint()
	msg := "invalid syntax"
	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %s", bad.Type())
	}
	return &selector.ParseError{Line: int(pt.Row) + 1, Column: int(pt.Column), Message: msg}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// =============================================================================
// Materialization
// =============================================================================

type builder struct {
	src   []byte
	lines []int
	cat   *tree.Catalogue
}

func (b builder) build(n *sitter.Node) tree.Node {
	var (
		kind     = n.Type()
		order    []string
		values   = make(map[string]any)
		children []tree.Node
		named    int
	)
	add := func(name string, v any) {
		node, isNode := v.(tree.Node)
		prev, ok := values[name]
		switch {
		case isNode && b.cat.IsListField(kind, name):
			if !ok {
				order = append(order, name)
			}
			list, _ := prev.([]tree.Node)
			values[name] = append(list, node)
		case !ok:
			order = append(order, name)
			values[name] = v
		case isNode:
			if list, isList := prev.([]tree.Node); isList {
				values[name] = append(list, node)
			} else if prevNode, ok := prev.(tree.Node); ok {
				values[name] = []tree.Node{prevNode, node}
			}
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || c.IsExtra() {
			continue
		}
		field := n.FieldNameForChild(i)
		switch {
		case c.IsNamed():
			named++
			node := b.build(c)
			if field == "" {
				children = append(children, node)
			} else {
				add(field, node)
			}
		case field != "":
			add(field, c.Content(b.src))
		}
	}
	for _, name := range b.cat.ListFields(kind) {
		if _, ok := values[name]; !ok {
			order = append(order, name)
			values[name] = []tree.Node{}
		}
	}

	fields := make([]tree.Field, 0, len(order)+1)
	for _, name := range order {
		fields = append(fields, tree.Field{Name: name, Value: values[name]})
	}
	if len(children) > 0 {
		fields = append(fields, tree.Field{Name: FieldChildren, Value: children})
	}
	if named == 0 {
		fields = append(fields, tree.Field{Name: FieldText, Value: n.Content(b.src)})
	}
	return b.cat.Node(kind, fields...).WithPosition(b.position(n))
}

// position converts byte offsets to a position with an inclusive end.
func (b builder) position(n *sitter.Node) tree.Position {
	start, end := int(n.StartByte()), int(n.EndByte())
	ls, cs := b.locate(start)
	if end <= start {
		return tree.Position{LineStart: ls, ColumnStart: cs, LineEnd: ls, ColumnEnd: cs}
	}
	le, ce := b.locate(end - 1)
	return tree.Position{LineStart: ls, ColumnStart: cs, LineEnd: le, ColumnEnd: ce}
}

// locate returns the 1-based line and 0-based column of a byte offset.
func (b builder) locate(offset int) (int, int) {
	line := sort.Search(len(b.lines), func(i int) bool { return b.lines[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	return line + 1, offset - b.lines[line]
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}
