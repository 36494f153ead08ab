// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feedback composes the message and highlight shown for a failure.
package feedback

import (
	"log/slog"
	"strings"

	"github.com/datacamp/protowhat/services/sct/messaging"
	"github.com/datacamp/protowhat/services/sct/tree"
)

// maxHighlightedComponents bounds the message parts kept when the
// feedback highlights code; the highlight carries the outer context.
const maxHighlightedComponents = 3

// =============================================================================
// Component
// =============================================================================

// Component is one message template with its variables.
//
// When Append is false the component discards every component before it
// in the feedback context.
type Component struct {
	Message string
	Kwargs  map[string]any
	Append  bool
}

// NewComponent creates an appending component.
func NewComponent(msg string, kwargs map[string]any) Component {
	return Component{Message: msg, Kwargs: kwargs, Append: true}
}

// Replacing creates a component that drops the context before it.
func Replacing(msg string, kwargs map[string]any) Component {
	return Component{Message: msg, Kwargs: kwargs, Append: false}
}

// IsZero reports whether the component carries no message.
func (c Component) IsZero() bool {
	return c.Message == "" && len(c.Kwargs) == 0
}

// =============================================================================
// Offset
// =============================================================================

// Offset shifts a position into the coordinates of an enclosing document.
//
// A point offset (LineOffset) moves both ends by the same line and column
// delta; a range offset moves each end by its own delta.
type Offset struct {
	LineStart   int `json:"line_start" yaml:"line_start" toml:"line_start"`
	ColumnStart int `json:"column_start" yaml:"column_start" toml:"column_start"`
	LineEnd     int `json:"line_end,omitempty" yaml:"line_end,omitempty" toml:"line_end,omitempty"`
	ColumnEnd   int `json:"column_end,omitempty" yaml:"column_end,omitempty" toml:"column_end,omitempty"`

	// Ranged marks LineEnd and ColumnEnd as explicit.
	Ranged bool `json:"ranged,omitempty" yaml:"ranged,omitempty" toml:"ranged,omitempty"`
}

// LineOffset creates a point offset.
func LineOffset(line, column int) Offset {
	return Offset{LineStart: line, ColumnStart: column}
}

// RangeOffset creates an offset with explicit end deltas.
func RangeOffset(lineStart, columnStart, lineEnd, columnEnd int) Offset {
	return Offset{
		LineStart:   lineStart,
		ColumnStart: columnStart,
		LineEnd:     lineEnd,
		ColumnEnd:   columnEnd,
		Ranged:      true,
	}
}

func (o Offset) ends() (int, int) {
	if o.Ranged {
		return o.LineEnd, o.ColumnEnd
	}
	return o.LineStart, o.ColumnStart
}

// Apply returns pos shifted by o.
func (o Offset) Apply(pos tree.Position) tree.Position {
	le, ce := o.ends()
	return tree.Position{
		LineStart:   pos.LineStart + o.LineStart,
		ColumnStart: pos.ColumnStart + o.ColumnStart,
		LineEnd:     pos.LineEnd + le,
		ColumnEnd:   pos.ColumnEnd + ce,
	}
}

// Compose returns the offset equivalent to applying o and then other.
func (o Offset) Compose(other Offset) Offset {
	le, ce := o.ends()
	ole, oce := other.ends()
	return Offset{
		LineStart:   o.LineStart + other.LineStart,
		ColumnStart: o.ColumnStart + other.ColumnStart,
		LineEnd:     le + ole,
		ColumnEnd:   ce + oce,
		Ranged:      o.Ranged || other.Ranged,
	}
}

// =============================================================================
// Highlight
// =============================================================================

// Highlight is the code range shown to the student.
//
// Lines are 1-based and columns are 1-based inclusive, the convention of
// the editor consuming the payload.
type Highlight struct {
	LineStart   int    `json:"line_start"`
	ColumnStart int    `json:"column_start"`
	LineEnd     int    `json:"line_end"`
	ColumnEnd   int    `json:"column_end"`
	Path        string `json:"path,omitempty"`
}

// PositionFunc locates a node for highlighting.
type PositionFunc func(tree.Node) (tree.Position, bool)

// NodePosition locates a node by its own position.
func NodePosition(n tree.Node) (tree.Position, bool) {
	return n.Position()
}

// ChildrenSpan locates a node by its own position or, failing that, by the
// span from its first to its last located child. Use it for token-stream
// parsers whose inner nodes carry no position of their own.
func ChildrenSpan(n tree.Node) (tree.Position, bool) {
	if pos, ok := n.Position(); ok {
		return pos, true
	}
	return tree.Span(n.Children())
}

// =============================================================================
// Feedback
// =============================================================================

// Feedback is the final message and highlight for one failure.
//
// Description:
//
//	The context holds the components contributed by the states between the
//	root and the failing state, outermost first; the conclusion is the
//	failing test's component. Feedback is immutable once built.
type Feedback struct {
	conclusion Component
	context    []Component
	highlight  tree.Node
	path       string
	disabled   bool
	offset     *Offset
	locate     PositionFunc
}

// Option configures a Feedback.
type Option func(*Feedback)

// WithContext sets the context components, outermost first.
func WithContext(components ...Component) Option {
	return func(f *Feedback) {
		f.context = append([]Component(nil), components...)
	}
}

// WithHighlight sets the node to highlight.
func WithHighlight(n tree.Node) Option {
	return func(f *Feedback) {
		f.highlight = n
	}
}

// WithPath sets the file path reported with the highlight.
func WithPath(path string) Option {
	return func(f *Feedback) {
		f.path = path
	}
}

// WithHighlightingDisabled suppresses the highlight.
func WithHighlightingDisabled(disabled bool) Option {
	return func(f *Feedback) {
		f.disabled = disabled
	}
}

// WithOffset shifts the highlight.
func WithOffset(o *Offset) Option {
	return func(f *Feedback) {
		f.offset = o
	}
}

// WithPositionFunc sets how the highlighted node is located.
func WithPositionFunc(fn PositionFunc) Option {
	return func(f *Feedback) {
		if fn != nil {
			f.locate = fn
		}
	}
}

// New creates feedback concluding with conclusion.
func New(conclusion Component, opts ...Option) *Feedback {
	f := &Feedback{conclusion: conclusion, locate: NodePosition}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FromMessage creates feedback with a single plain message.
func FromMessage(msg string) *Feedback {
	return New(NewComponent(msg, nil))
}

// Conclusion returns the failing test's component.
func (f *Feedback) Conclusion() Component {
	return f.conclusion
}

// Context returns the context components, outermost first.
func (f *Feedback) Context() []Component {
	return append([]Component(nil), f.context...)
}

// Message renders the feedback text.
//
// Description:
//
//	The components are the context followed by the conclusion. Rendering
//	starts at the last non-appending component. When a highlight is shown
//	only the last three components are kept. Each component is rendered
//	with its own variables plus "parent", "this" and "child" maps holding
//	the neighbouring components' variables; the results are trimmed and
//	joined with single spaces, skipping empty ones.
//
// Example:
//
//	ctx: "This is worse.", "This is even worse."; conclusion "This is not good."
//	=> "This is worse. This is even worse. This is not good."
func (f *Feedback) Message() string {
	components := append(f.Context(), f.conclusion)

	start := 0
	for i, c := range components {
		if !c.Append {
			start = i
		}
	}
	components = components[start:]

	if _, ok := f.Highlight(); ok && len(components) > maxHighlightedComponents {
		components = components[len(components)-maxHighlightedComponents:]
	}

	parts := make([]string, 0, len(components))
	for i, c := range components {
		data := make(map[string]any, len(c.Kwargs)+3)
		for k, v := range c.Kwargs {
			data[k] = v
		}
		data["this"] = kwargsOf(c)
		data["parent"] = map[string]any{}
		data["child"] = map[string]any{}
		if i > 0 {
			data["parent"] = kwargsOf(components[i-1])
		}
		if i+1 < len(components) {
			data["child"] = kwargsOf(components[i+1])
		}

		text, err := messaging.Render(c.Message, data)
		if err != nil {
			slog.Debug("rendering feedback component", slog.String("error", err.Error()))
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func kwargsOf(c Component) map[string]any {
	if c.Kwargs == nil {
		return map[string]any{}
	}
	return c.Kwargs
}

// Highlight returns the range to show, if any.
//
// Description:
//
//	No highlight is produced when highlighting is disabled, there is no
//	node or the node cannot be located. The node position is shifted by the
//	offset, then columns are converted to the 1-based payload convention.
func (f *Feedback) Highlight() (Highlight, bool) {
	if f.disabled || f.highlight == nil {
		return Highlight{}, false
	}
	pos, ok := f.locate(f.highlight)
	if !ok {
		return Highlight{}, false
	}
	if f.offset != nil {
		pos = f.offset.Apply(pos)
	}
	return Highlight{
		LineStart:   pos.LineStart,
		ColumnStart: pos.ColumnStart + 1,
		LineEnd:     pos.LineEnd,
		ColumnEnd:   pos.ColumnEnd + 1,
		Path:        f.path,
	}, true
}

// HighlightNode returns the node the feedback points at, if any.
func (f *Feedback) HighlightNode() tree.Node {
	return f.highlight
}
