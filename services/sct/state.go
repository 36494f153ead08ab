// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sct holds the checking state that submission correctness tests
// navigate, and the failures they produce.
//
// A State bundles the student's and the solution's code, parse trees and
// execution results together with the shared Reporter. States are
// immutable: every focusing step returns a child that links back to its
// parent, so the chain of checks that led to a failure can always be
// reconstructed and described.
package sct

import (
	"errors"
	"maps"

	"github.com/datacamp/protowhat/services/sct/feedback"
	"github.com/datacamp/protowhat/services/sct/reporter"
	"github.com/datacamp/protowhat/services/sct/selector"
	"github.com/datacamp/protowhat/services/sct/tree"
)

// Config holds the values a root State is built from.
type Config struct {
	StudentCode     string
	SolutionCode    string
	PreExerciseCode string

	// StudentConn and SolutionConn are opaque handles to the processes
	// that executed the code, if any.
	StudentConn  any
	SolutionConn any

	StudentResult  any
	SolutionResult any

	// Reporter records the run. A fresh reporter.New() is used when nil.
	Reporter *reporter.Reporter

	// ForceDiagnose makes check_correct always run its diagnosis.
	ForceDiagnose bool

	HighlightOffset      *feedback.Offset
	HighlightingDisabled bool
	FeedbackContext      *feedback.Component

	// StudentAST and SolutionAST skip parsing when set.
	StudentAST  tree.Node
	SolutionAST tree.Node

	// Dispatcher parses and searches trees. A dispatcher without parser
	// is used when nil.
	Dispatcher *selector.Dispatcher

	// Highlight overrides the node highlighted on failure.
	Highlight tree.Node

	// Path is the file the student code came from.
	Path string

	// PositionFunc locates highlighted nodes. Defaults to the node's own
	// position.
	PositionFunc feedback.PositionFunc

	// ExtraParams names technology-specific parameters this state accepts
	// in Extra and in ToChild.
	ExtraParams []string

	// Extra holds technology-specific parameters.
	Extra Params
}

// Creator records which check produced a state.
type Creator struct {
	// Type is the check name, e.g. "check_node".
	Type string

	// Args are the check's arguments.
	Args map[string]any

	// Parent is the state the check ran on.
	Parent *State
}

// State is one immutable checking state.
//
// Thread Safety:
//
//	A State may be read from several goroutines, but the Reporter it
//	carries is not safe for concurrent use, so one grading run should be
//	driven from a single goroutine.
type State struct {
	cfg              Config
	studentParseErr  error
	solutionParseErr error
	creator          *Creator
	debug            bool
}

// New builds a root state.
//
// Description:
//
//	Missing trees are parsed with the dispatcher. With safe parsing a
//	syntax error is kept on the state (see StudentParseError) and
//	tree-based checks skip. With unsafe parsing, a student syntax error is
//	reported as a *StudentFailure and a solution syntax error as an
//	*AuthoringError.
//
// Inputs:
//
//	cfg - The root values.
//
// Outputs:
//
//	*State - The root state.
//	error  - A *StudentFailure or *AuthoringError when parsing aborts.
func New(cfg Config) (*State, error) {
	if cfg.Reporter == nil {
		cfg.Reporter = reporter.New()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = selector.NewDispatcher(nil, nil)
	}
	cfg.Extra = maps.Clone(cfg.Extra)
	s := &State{cfg: cfg}

	if s.cfg.SolutionAST == nil {
		n, err := s.cfg.Dispatcher.Parse(cfg.SolutionCode)
		switch {
		case err == nil:
			s.cfg.SolutionAST = n
		case errors.Is(err, selector.ErrUnsafeParse):
			return nil, NewAuthoringError(nil,
				"Something went wrong when parsing PEC or solution code: "+err.Error(), err)
		default:
			s.solutionParseErr = err
		}
	}

	if s.cfg.StudentAST == nil {
		n, err := s.cfg.Dispatcher.Parse(cfg.StudentCode)
		switch {
		case err == nil:
			s.cfg.StudentAST = n
		case errors.Is(err, selector.ErrUnsafeParse):
			var pe *selector.ParseError
			msg := err.Error()
			if errors.As(err, &pe) {
				msg = pe.Message
			}
			return nil, s.Report(msg, nil)
		default:
			s.studentParseErr = err
		}
	}
	return s, nil
}

// =============================================================================
// Accessors
// =============================================================================

// StudentCode returns the submitted code.
func (s *State) StudentCode() string { return s.cfg.StudentCode }

// SolutionCode returns the reference solution.
func (s *State) SolutionCode() string { return s.cfg.SolutionCode }

// PreExerciseCode returns the code run before the student's.
func (s *State) PreExerciseCode() string { return s.cfg.PreExerciseCode }

// StudentConn returns the host's handle on the student process, if any.
func (s *State) StudentConn() any { return s.cfg.StudentConn }

// SolutionConn returns the host's handle on the solution process, if any.
func (s *State) SolutionConn() any { return s.cfg.SolutionConn }

// StudentResult returns the output of running the student code, if any.
func (s *State) StudentResult() any { return s.cfg.StudentResult }

// SolutionResult returns the output of running the solution, if any.
func (s *State) SolutionResult() any { return s.cfg.SolutionResult }

// Reporter returns the reporter tests are recorded on. Embedded states
// have a child reporter forwarding to the host's.
func (s *State) Reporter() *reporter.Reporter { return s.cfg.Reporter }

// ForceDiagnose reports whether check_correct always runs its diagnosis.
// The flag is set on the root and inherited by every child.
func (s *State) ForceDiagnose() bool { return s.cfg.ForceDiagnose }

// HighlightingDisabled reports whether feedback from this state omits the
// highlight.
func (s *State) HighlightingDisabled() bool { return s.cfg.HighlightingDisabled }

// StudentAST returns the focused student node.
func (s *State) StudentAST() tree.Node { return s.cfg.StudentAST }

// SolutionAST returns the focused solution node.
func (s *State) SolutionAST() tree.Node { return s.cfg.SolutionAST }

// Dispatcher returns the dispatcher that parsed the code.
func (s *State) Dispatcher() *selector.Dispatcher { return s.cfg.Dispatcher }

// Path returns the student file path used in highlights.
func (s *State) Path() string { return s.cfg.Path }

// Debug reports whether the state runs under _debug.
func (s *State) Debug() bool { return s.debug }

// Creator returns how the state was derived; nil for a root state.
func (s *State) Creator() *Creator { return s.creator }

// StudentParseError returns the kept student syntax error, if any.
func (s *State) StudentParseError() error { return s.studentParseErr }

// SolutionParseError returns the kept solution syntax error, if any.
func (s *State) SolutionParseError() error { return s.solutionParseErr }

// HighlightOffset returns the offset applied to highlights, if any.
func (s *State) HighlightOffset() *feedback.Offset { return s.cfg.HighlightOffset }

// FeedbackContext returns the component this state adds to feedback.
func (s *State) FeedbackContext() *feedback.Component { return s.cfg.FeedbackContext }

// Highlight returns the node highlighted on failure: the explicit
// highlight if set, else the student tree.
func (s *State) Highlight() tree.Node {
	if s.cfg.Highlight != nil {
		return s.cfg.Highlight
	}
	return s.cfg.StudentAST
}

// Extra returns a technology-specific parameter.
func (s *State) Extra(name string) (any, bool) {
	v, ok := s.cfg.Extra[name]
	return v, ok
}

// Param returns a parameter by its name in StandardParams or ExtraParams.
func (s *State) Param(name string) (any, bool) {
	switch name {
	case ParamStudentCode:
		return s.cfg.StudentCode, true
	case ParamSolutionCode:
		return s.cfg.SolutionCode, true
	case ParamPreExerciseCode:
		return s.cfg.PreExerciseCode, true
	case ParamStudentConn:
		return s.cfg.StudentConn, true
	case ParamSolutionConn:
		return s.cfg.SolutionConn, true
	case ParamStudentResult:
		return s.cfg.StudentResult, true
	case ParamSolutionResult:
		return s.cfg.SolutionResult, true
	case ParamReporter:
		return s.cfg.Reporter, true
	case ParamForceDiagnose:
		return s.cfg.ForceDiagnose, true
	case ParamHighlightOffset:
		return s.cfg.HighlightOffset, true
	case ParamHighlightingDisabled:
		return s.cfg.HighlightingDisabled, true
	case ParamFeedbackContext:
		return s.cfg.FeedbackContext, true
	case ParamStudentAST:
		return s.cfg.StudentAST, true
	case ParamSolutionAST:
		return s.cfg.SolutionAST, true
	case ParamDispatcher:
		return s.cfg.Dispatcher, true
	case ParamHighlight:
		return s.cfg.Highlight, true
	case ParamPath:
		return s.cfg.Path, true
	}
	return s.Extra(name)
}

func (s *State) acceptsExtra(name string) bool {
	for _, p := range s.cfg.ExtraParams {
		if p == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Derivation
// =============================================================================

// ToChild returns a child state with some parameters replaced.
//
// Description:
//
//	The child copies every value of s, then applies overrides. Keys must
//	be StandardParams or the state's ExtraParams; anything else yields
//	ErrUnknownParam. The feedback context is not inherited: the child
//	contributes only the context given in overrides, the parents'
//	contexts are collected from the history when feedback is built.
//
// Inputs:
//
//	overrides - Parameters to replace. May be nil.
//
// Outputs:
//
//	*State - The child, whose creator links back to s.
//	error  - ErrUnknownParam or ErrInvalidParam.
//
// Example:
//
//	child, err := s.ToChild(sct.Params{
//	    sct.ParamStudentAST:      stuNode,
//	    sct.ParamSolutionAST:     solNode,
//	    sct.ParamFeedbackContext: "Check the first call.",
//	})
func (s *State) ToChild(overrides Params) (*State, error) {
	cfg := s.cfg
	cfg.Extra = maps.Clone(s.cfg.Extra)
	cfg.FeedbackContext = nil
	if err := overrides.apply(&cfg, s.acceptsExtra); err != nil {
		return nil, err
	}
	child := *s
	child.cfg = cfg
	child.creator = &Creator{Type: "to_child", Parent: s}
	return &child, nil
}

// WithCreator returns a copy of s recorded as produced by the check typ
// running on parent.
func (s *State) WithCreator(typ string, args map[string]any, parent *State) *State {
	child := *s
	child.creator = &Creator{Type: typ, Args: args, Parent: parent}
	return &child
}

// withDebug returns a copy of s with debug mode set, keeping its creator.
func (s *State) withDebug(on bool) *State {
	child := *s
	child.debug = on
	return &child
}

// Parent returns the state s was derived from, nil for a root.
func (s *State) Parent() *State {
	if s.creator == nil {
		return nil
	}
	return s.creator.Parent
}

// IsRoot reports whether s has no parent.
func (s *State) IsRoot() bool {
	return s.Parent() == nil
}

// Root returns the first state of the history.
func (s *State) Root() *State {
	cur := s
	for cur.Parent() != nil {
		cur = cur.Parent()
	}
	return cur
}

// History returns the states from the root to s, inclusive.
func (s *State) History() []*State {
	var rev []*State
	for cur := s; cur != nil; cur = cur.Parent() {
		rev = append(rev, cur)
	}
	out := make([]*State, len(rev))
	for i, st := range rev {
		out[len(rev)-1-i] = st
	}
	return out
}

// =============================================================================
// Reporting
// =============================================================================

// Report fails with msg, rendered with kwargs. It always returns a
// non-nil error: a *StudentFailure, or an *AuthoringError in debug mode.
func (s *State) Report(msg string, kwargs map[string]any) error {
	return s.ReportComponent(feedback.NewComponent(msg, kwargs))
}

// ReportComponent fails with the given component.
func (s *State) ReportComponent(c feedback.Component) error {
	err := s.DoTest(reporter.Fail(c))
	if err == nil {
		return &StudentFailure{feedback: s.Feedback(c), history: s.History()}
	}
	return err
}

// DoTest runs t through the reporter.
//
// Description:
//
//	A passing test returns nil. A failing test returns a *StudentFailure
//	carrying this state's feedback and history. In debug mode the failure
//	is turned into an *AuthoringError with debugging information instead,
//	and debug mode is switched off for the state used to describe it.
func (s *State) DoTest(t *reporter.Test) error {
	passed, fb := s.cfg.Reporter.DoTest(t)
	if passed {
		return nil
	}
	if s.debug {
		described := *s
		described.cfg.FeedbackContext = &fb
		described.debug = false
		return debugFailure(&described, "Debug on error:", true)
	}
	return &StudentFailure{feedback: s.Feedback(fb), history: s.History()}
}

func (s *State) creatorType() string {
	if s.creator == nil {
		return ""
	}
	return s.creator.Type
}

// Feedback builds the feedback for conclusion failing in this state.
//
// Description:
//
//	The context is the feedback context of every state in the history.
//	Highlighting is disabled when the state still focuses on the root's
//	student tree, so whole-submission failures do not highlight
//	everything.
func (s *State) Feedback(conclusion feedback.Component) *feedback.Feedback {
	disabled := s.cfg.HighlightingDisabled
	if tree.Same(s.cfg.StudentAST, s.Root().cfg.StudentAST) {
		disabled = true
	}

	var ctx []feedback.Component
	for _, st := range s.History() {
		if c := st.cfg.FeedbackContext; c != nil && !c.IsZero() {
			ctx = append(ctx, *c)
		}
	}

	return feedback.New(conclusion,
		feedback.WithContext(ctx...),
		feedback.WithHighlight(s.Highlight()),
		feedback.WithPath(s.cfg.Path),
		feedback.WithHighlightingDisabled(disabled),
		feedback.WithOffset(s.cfg.HighlightOffset),
		feedback.WithPositionFunc(s.cfg.PositionFunc),
	)
}

// =============================================================================
// Describing the focus
// =============================================================================

const (
	creatorCheckNode = "check_node"
	creatorCheckEdge = "check_edge"
	creatorEmbed     = "embed"
)

// AstPath describes the student code the state focuses on, e.g.
// "second expression" or "first entry in the body of the function
// definition". The second result is false when no description is
// available.
func (s *State) AstPath() (string, bool) {
	var focus []*State
	hist := s.History()
	for i := len(hist) - 1; i >= 0; i-- {
		t := hist[i].creatorType()
		if t == creatorEmbed {
			break
		}
		if t == creatorCheckNode || t == creatorCheckEdge {
			focus = append(focus, hist[i])
		}
	}

	d := s.cfg.Dispatcher
	if len(focus) == 0 {
		return d.Describe(s.cfg.StudentAST, "{{.node_name}}", "", selector.NoIndex, nil)
	}

	last := focus[0]
	if last.creator.Type == creatorCheckNode {
		return d.Describe(last.cfg.StudentAST, "{{.index}}{{.node_name}}", "", indexArg(last.creator.Args), nil)
	}
	if len(focus) > 1 && focus[1].creator.Type == creatorCheckNode {
		field, _ := last.creator.Args["name"].(string)
		return d.Describe(focus[1].cfg.StudentAST, "{{.index}}{{.field_name}} of the {{.node_name}}",
			field, indexArg(last.creator.Args), nil)
	}
	return "", false
}

func indexArg(args map[string]any) int {
	switch v := args["index"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return selector.NoIndex
}
