// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sctest provides a tiny arithmetic language for tests.
//
// A program is one statement per line. A statement is an expression or an
// assignment "name = expression"; expressions are integers and names joined
// by + - * / (left associative, no precedence).
package sctest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datacamp/protowhat/services/sct/tree"
)

// Catalogue returns the kind table of the test language.
func Catalogue() *tree.Catalogue {
	return tree.NewCatalogue("calc",
		tree.KindInfo{Kind: "module", Priority: 0},
		tree.KindInfo{Kind: "expr_stmt", Priority: 1, Display: "expression"},
		tree.KindInfo{Kind: "assign", Priority: 1, Display: "assignment",
			Fields: map[string]string{"target": "assigned name"}},
		tree.KindInfo{Kind: "binop", Priority: 2, Display: "binary operation",
			Fields: map[string]string{"left": "left operand", "right": "right operand"}},
		tree.KindInfo{Kind: "num", Priority: 3, Display: "number"},
		tree.KindInfo{Kind: "name", Priority: 3, Display: "name"},
		tree.KindInfo{Kind: "stmt", Priority: 1, Display: "statement",
			Subkinds: []string{"expr_stmt", "assign"}},
	).
		Alias("Module", "module").
		Alias("Expr", "expr_stmt").
		Alias("Assign", "assign").
		Alias("BinOp", "binop").
		Alias("Num", "num").
		Alias("Name", "name").
		Alias("Stmt", "stmt")
}

// SyntaxError is returned for code outside the language.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d column %d: %s", e.Line, e.Column, e.Msg)
}

// Parser parses the test language into tree.Generic nodes.
type Parser struct {
	cat *tree.Catalogue
}

// NewParser creates a parser building nodes in Catalogue().
func NewParser() *Parser {
	return &Parser{cat: Catalogue()}
}

// Catalogue returns the parser's catalogue.
func (p *Parser) Catalogue() *tree.Catalogue {
	return p.cat
}

// Parse implements the dispatcher parser contract.
func (p *Parser) Parse(code string) (tree.Node, error) {
	var body []tree.Node
	for i, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		stmt, err := p.statement(line, i+1)
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	mod := p.cat.Node("module", tree.Field{Name: "body", Value: body})
	if pos, ok := tree.Span(body); ok {
		mod = mod.WithPosition(pos)
	}
	return mod, nil
}

type token struct {
	text string
	col  int
}

func tokenize(line string, lineNo int) ([]token, error) {
	var out []token
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case strings.IndexByte("+-*/=", c) >= 0:
			out = append(out, token{text: string(c), col: i})
			i++
		case isDigit(c) || isLetter(c):
			j := i
			for j < len(line) && (isDigit(line[j]) || isLetter(line[j])) {
				j++
			}
			out = append(out, token{text: line[i:j], col: i})
			i = j
		default:
			return nil, &SyntaxError{Line: lineNo, Column: i, Msg: fmt.Sprintf("unexpected %q", c)}
		}
	}
	return out, nil
}

func (p *Parser) statement(line string, lineNo int) (tree.Node, error) {
	toks, err := tokenize(line, lineNo)
	if err != nil {
		return nil, err
	}

	if len(toks) >= 2 && toks[1].text == "=" {
		target, err := p.operand(toks[0], lineNo)
		if err != nil {
			return nil, err
		}
		if target.Kind() != "name" {
			return nil, &SyntaxError{Line: lineNo, Column: toks[0].col, Msg: "cannot assign to literal"}
		}
		value, err := p.expression(toks[2:], lineNo)
		if err != nil {
			return nil, err
		}
		return p.located("assign", lineNo, toks, tree.Field{Name: "target", Value: target}, tree.Field{Name: "value", Value: value}), nil
	}

	value, err := p.expression(toks, lineNo)
	if err != nil {
		return nil, err
	}
	return p.located("expr_stmt", lineNo, toks, tree.Field{Name: "value", Value: value}), nil
}

func (p *Parser) expression(toks []token, lineNo int) (tree.Node, error) {
	if len(toks) == 0 || len(toks)%2 == 0 {
		col := 0
		if len(toks) > 0 {
			col = toks[len(toks)-1].col
		}
		return nil, &SyntaxError{Line: lineNo, Column: col, Msg: "incomplete expression"}
	}
	left, err := p.operand(toks[0], lineNo)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(toks); i += 2 {
		op := toks[i]
		if strings.IndexByte("+-*/", op.text[0]) < 0 || len(op.text) != 1 {
			return nil, &SyntaxError{Line: lineNo, Column: op.col, Msg: fmt.Sprintf("expected operator, got %q", op.text)}
		}
		right, err := p.operand(toks[i+1], lineNo)
		if err != nil {
			return nil, err
		}
		left = p.located("binop", lineNo, toks[:i+2],
			tree.Field{Name: "left", Value: left},
			tree.Field{Name: "op", Value: op.text},
			tree.Field{Name: "right", Value: right})
	}
	return left, nil
}

func (p *Parser) operand(tok token, lineNo int) (tree.Node, error) {
	if n, err := strconv.Atoi(tok.text); err == nil {
		return p.located("num", lineNo, []token{tok}, tree.Field{Name: "n", Value: n}), nil
	}
	if isLetter(tok.text[0]) {
		return p.located("name", lineNo, []token{tok}, tree.Field{Name: "id", Value: tok.text}), nil
	}
	return nil, &SyntaxError{Line: lineNo, Column: tok.col, Msg: fmt.Sprintf("unexpected %q", tok.text)}
}

func (p *Parser) located(kind string, lineNo int, toks []token, fields ...tree.Field) tree.Node {
	last := toks[len(toks)-1]
	return p.cat.Node(kind, fields...).WithPosition(tree.Position{
		LineStart:   lineNo,
		ColumnStart: toks[0].col,
		LineEnd:     lineNo,
		ColumnEnd:   last.col + len(last.text) - 1,
	})
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c == '_' || (c|0x20 >= 'a' && c|0x20 <= 'z') }
