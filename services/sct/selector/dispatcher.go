// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selector

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/datacamp/protowhat/services/sct/messaging"
	"github.com/datacamp/protowhat/services/sct/tree"
)

// NoIndex marks a description without an ordinal.
const NoIndex = -1

// =============================================================================
// Collaborator contracts
// =============================================================================

// Parser turns code into a tree.
//
// Implementations report syntax errors with *ParseError when they can;
// any other error is wrapped into one by the Dispatcher.
type Parser interface {
	Parse(code string) (tree.Node, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(code string) (tree.Node, error)

// Parse implements Parser.
func (f ParserFunc) Parse(code string) (tree.Node, error) {
	return f(code)
}

// Speaker phrases nodes for feedback.
//
// Describe renders tmpl with vars extended by the node's phrases
// ("node_name", and "field_name" when field is set).
type Speaker interface {
	Describe(node tree.Node, field string, tmpl string, vars map[string]any) (string, error)
}

// =============================================================================
// Errors
// =============================================================================

// ErrNoParser is the cause of parse errors from a dispatcher without parser.
var ErrNoParser = errors.New("no parser configured")

// ParseError describes code that could not be parsed.
type ParseError struct {
	// Line is the 1-based line of the error, 0 if unknown.
	Line int

	// Column is the 0-based column of the error.
	Column int

	// Message is the human readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// =============================================================================
// Dispatcher
// =============================================================================

// Dispatcher is the facade checks use to parse, find and describe nodes.
//
// Description:
//
//	A Dispatcher binds a language catalogue, a parser and a speaker. It
//	resolves node names through the catalogue: a known kind selects
//	strictly, a family selects any of its members, and an unknown name
//	selects nodes of that kind anywhere below the searched node.
//
//	With safe parsing (the default) Parse reports syntax errors as a
//	*ParseError the caller may keep as a value. With unsafe parsing the
//	error is wrapped in ErrUnsafeParse so callers abort instead.
//
// Thread Safety:
//
//	Safe for concurrent use if the parser and speaker are.
type Dispatcher struct {
	catalogue   *tree.Catalogue
	parser      Parser
	speaker     Speaker
	safeParsing bool
}

// ErrUnsafeParse wraps parse errors of a dispatcher with unsafe parsing.
var ErrUnsafeParse = errors.New("parse failed")

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSpeaker sets the speaker used by Describe.
func WithSpeaker(s Speaker) Option {
	return func(d *Dispatcher) {
		d.speaker = s
	}
}

// WithUnsafeParsing makes parse errors fatal for the caller.
func WithUnsafeParsing() Option {
	return func(d *Dispatcher) {
		d.safeParsing = false
	}
}

// NewDispatcher creates a dispatcher.
//
// Inputs:
//
//	c      - The language catalogue. nil behaves as an empty catalogue.
//	p      - The parser. nil gives a dispatcher whose Parse always reports
//	         ErrNoParser as a safe parse error.
//	opts   - Options. Without WithSpeaker, a CatalogueSpeaker over c is used.
//
// Example:
//
//	d := selector.NewDispatcher(cat, parser)
//	exprs := d.Find("Expr", root)
func NewDispatcher(c *tree.Catalogue, p Parser, opts ...Option) *Dispatcher {
	d := &Dispatcher{catalogue: c, parser: p, safeParsing: true}
	for _, opt := range opts {
		opt(d)
	}
	if d.speaker == nil && c != nil {
		d.speaker = NewCatalogueSpeaker(c)
	}
	return d
}

// Catalogue returns the dispatcher's catalogue.
func (d *Dispatcher) Catalogue() *tree.Catalogue {
	return d.catalogue
}

// SafeParsing reports whether parse errors are recoverable values.
func (d *Dispatcher) SafeParsing() bool {
	return d.safeParsing
}

// Target resolves a node name to a selector target and its priority.
func (d *Dispatcher) Target(name string) (Target, int) {
	info, ok := d.catalogue.Lookup(name)
	if !ok {
		return Target{Name: name}, math.MaxInt
	}
	if info.IsFamily() {
		return Target{Kind: info.Kind, Subkinds: info.Subkinds}, info.Priority
	}
	return Target{Kind: info.Kind, Strict: true}, info.Priority
}

// FindOption adjusts one Find call.
type FindOption func(*findConfig)

type findConfig struct {
	priority *int
}

// AtPriority overrides the selector priority of a Find.
func AtPriority(p int) FindOption {
	return func(c *findConfig) {
		c.priority = &p
	}
}

// Find returns all nodes named name below node, in pre-order.
func (d *Dispatcher) Find(name string, node tree.Node, opts ...FindOption) []tree.Node {
	var cfg findConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	target, priority := d.Target(name)
	if cfg.priority != nil {
		priority = *cfg.priority
	}
	return NewSelector(target, priority).Select(node)
}

// Select follows a dotted path of field names, mapping keys and list
// indices from node, e.g. "body.0.value". node may be a tree.Node or a
// mapping with string keys. It returns nil when any step is missing.
func (d *Dispatcher) Select(path string, node any) any {
	cur := node
	for _, step := range strings.Split(path, ".") {
		if step == "" {
			continue
		}
		cur = selectStep(cur, step)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func selectStep(cur any, step string) any {
	switch v := cur.(type) {
	case tree.Node:
		if v == nil {
			return nil
		}
		f, _ := v.Field(step)
		return f
	case map[string]any:
		return v[step]
	case []tree.Node:
		if i, ok := index(step, len(v)); ok {
			return v[i]
		}
		return nil
	case []any:
		if i, ok := index(step, len(v)); ok {
			return v[i]
		}
		return nil
	}

	// Named mapping types such as parameter sets.
	rv := reflect.ValueOf(cur)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		e := rv.MapIndex(reflect.ValueOf(step).Convert(rv.Type().Key()))
		if e.IsValid() {
			return e.Interface()
		}
	}
	return nil
}

func index(step string, n int) (int, bool) {
	i, err := strconv.Atoi(step)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

// Parse parses code.
//
// Description:
//
//	Syntax errors come back as *ParseError. With unsafe parsing they are
//	additionally wrapped in ErrUnsafeParse. Without a parser, Parse returns
//	a safe *ParseError caused by ErrNoParser.
func (d *Dispatcher) Parse(code string) (tree.Node, error) {
	if d.parser == nil {
		return nil, &ParseError{Message: ErrNoParser.Error(), Cause: ErrNoParser}
	}
	n, err := d.parser.Parse(code)
	if err == nil {
		return n, nil
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		pe = &ParseError{Message: err.Error(), Cause: err}
	}
	if !d.safeParsing {
		return nil, fmt.Errorf("%w: %w", ErrUnsafeParse, pe)
	}
	return nil, pe
}

// Describe phrases node for feedback.
//
// Description:
//
//	index is 0-based or NoIndex. When set it is rendered into the "index"
//	variable as "second entry in the " when field is set and "second "
//	otherwise. The second result is false when no speaker is configured or
//	the speaker fails; callers fall back to a generic message.
func (d *Dispatcher) Describe(node tree.Node, tmpl string, field string, index int, vars map[string]any) (string, bool) {
	if d.speaker == nil || node == nil {
		return "", false
	}
	data := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		data[k] = v
	}
	data["index"] = ""
	if index != NoIndex {
		phrase := "%s "
		if field != "" {
			phrase = "%s entry in the "
		}
		data["index"] = fmt.Sprintf(phrase, messaging.Ordinal(index+1))
	}

	out, err := d.speaker.Describe(node, field, tmpl, data)
	if err != nil {
		slog.Warn("describing node failed",
			slog.String("kind", node.Kind()),
			slog.String("error", err.Error()))
		return "", false
	}
	return out, true
}

// =============================================================================
// CatalogueSpeaker
// =============================================================================

// CatalogueSpeaker phrases nodes with the display names of a catalogue.
type CatalogueSpeaker struct {
	catalogue *tree.Catalogue
}

// NewCatalogueSpeaker creates a speaker over c.
func NewCatalogueSpeaker(c *tree.Catalogue) *CatalogueSpeaker {
	return &CatalogueSpeaker{catalogue: c}
}

// Describe implements Speaker.
func (s *CatalogueSpeaker) Describe(node tree.Node, field string, tmpl string, vars map[string]any) (string, error) {
	data := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		data[k] = v
	}
	data["node_name"] = s.catalogue.DisplayName(node.Kind())
	if field != "" {
		data["field_name"] = s.catalogue.FieldName(node.Kind(), field)
	}
	return messaging.Render(tmpl, data)
}
