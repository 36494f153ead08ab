// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sct

import (
	"errors"
	"testing"

	"github.com/datacamp/protowhat/services/sct/feedback"
	"github.com/datacamp/protowhat/services/sct/internal/sctest"
	"github.com/datacamp/protowhat/services/sct/reporter"
	"github.com/datacamp/protowhat/services/sct/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calcDispatcher(opts ...selector.Option) *selector.Dispatcher {
	p := sctest.NewParser()
	return selector.NewDispatcher(p.Catalogue(), p, opts...)
}

func newState(t *testing.T, student, solution string) *State {
	t.Helper()
	s, err := New(Config{
		StudentCode:  student,
		SolutionCode: solution,
		Dispatcher:   calcDispatcher(),
		Reporter:     reporter.New(reporter.WithRenderer(reporter.PlainRenderer{})),
	})
	require.NoError(t, err)
	return s
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_ParsesCode(t *testing.T) {
	s := newState(t, "1 + 1", "3 + 3")

	require.NotNil(t, s.StudentAST())
	require.NotNil(t, s.SolutionAST())
	assert.NoError(t, s.StudentParseError())
	assert.True(t, s.IsRoot())
	assert.Equal(t, []*State{s}, s.History())
	assert.NotNil(t, s.Reporter())
}

func TestNew_DefaultsWithoutParser(t *testing.T) {
	s, err := New(Config{StudentCode: "x"})
	require.NoError(t, err)

	assert.Nil(t, s.StudentAST())
	assert.ErrorIs(t, s.StudentParseError(), selector.ErrNoParser)
	assert.Equal(t, reporter.DefaultSuccessMessage, s.Reporter().SuccessMessage())
}

func TestNew_SafeParseKeepsError(t *testing.T) {
	s := newState(t, "1 +", "1 + 1")

	assert.Nil(t, s.StudentAST())
	assert.True(t, selector.IsParseError(s.StudentParseError()))
	assert.NoError(t, s.SolutionParseError())
}

func TestNew_UnsafeParse(t *testing.T) {
	t.Run("student syntax error fails the student", func(t *testing.T) {
		_, err := New(Config{StudentCode: "1 +", SolutionCode: "1", Dispatcher: calcDispatcher(selector.WithUnsafeParsing())})
		require.Error(t, err)
		assert.True(t, IsStudentFailure(err))
		assert.Contains(t, err.Error(), "incomplete expression")
	})

	t.Run("solution syntax error blames the author", func(t *testing.T) {
		_, err := New(Config{StudentCode: "1", SolutionCode: "1 $", Dispatcher: calcDispatcher(selector.WithUnsafeParsing())})
		require.Error(t, err)
		assert.True(t, IsAuthoringError(err))
		assert.Contains(t, err.Error(), "Something went wrong when parsing PEC or solution code")
		assert.ErrorIs(t, err, selector.ErrUnsafeParse)
	})
}

// =============================================================================
// Derivation
// =============================================================================

func TestToChild(t *testing.T) {
	s := newState(t, "1 + 1", "3 + 3")
	node := s.StudentAST().Children()[0]

	child, err := s.ToChild(Params{
		ParamStudentAST:      node,
		ParamFeedbackContext: "Check the sum.",
	})
	require.NoError(t, err)

	assert.Same(t, s, child.Parent())
	assert.False(t, child.IsRoot())
	assert.Equal(t, "1 + 1", child.StudentCode(), "unchanged values are copied")
	assert.Equal(t, "Check the sum.", child.FeedbackContext().Message)
	assert.Nil(t, s.FeedbackContext(), "parent is untouched")

	grandchild, err := child.ToChild(nil)
	require.NoError(t, err)
	assert.Nil(t, grandchild.FeedbackContext(), "context is not inherited")
	assert.Len(t, grandchild.History(), 3)
	assert.Same(t, s, grandchild.Root())
}

func TestToChild_Rejects(t *testing.T) {
	s := newState(t, "1", "1")

	_, err := s.ToChild(Params{"not_a_param": 1})
	assert.ErrorIs(t, err, ErrUnknownParam)

	_, err = s.ToChild(Params{ParamStudentCode: 3})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = s.ToChild(Params{ParamHighlightOffset: "far"})
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestToChild_ExtraParams(t *testing.T) {
	s, err := New(Config{ExtraParams: []string{"custom"}, Extra: Params{"custom": "a"}})
	require.NoError(t, err)

	child, err := s.ToChild(Params{"custom": "b"})
	require.NoError(t, err)

	v, _ := child.Extra("custom")
	assert.Equal(t, "b", v)
	v, _ = s.Extra("custom")
	assert.Equal(t, "a", v)
}

func TestWithCreator(t *testing.T) {
	s := newState(t, "1", "1")
	child := s.WithCreator("noop", map[string]any{"x": 1}, s)

	require.NotNil(t, child.Creator())
	assert.Equal(t, "noop", child.Creator().Type)
	assert.Equal(t, []string{"noop"}, CheckHistory(child.History()))
	assert.Nil(t, s.Creator())
}

// =============================================================================
// Reporting and feedback
// =============================================================================

func TestReport_AtRootDisablesHighlight(t *testing.T) {
	s := newState(t, "1 + 1", "3 + 3")

	err := s.Report("Wrong.", nil)
	require.Error(t, err)

	var sf *StudentFailure
	require.True(t, errors.As(err, &sf))
	assert.Equal(t, "Wrong.", sf.Error())
	_, ok := sf.Feedback().Highlight()
	assert.False(t, ok, "the whole submission is never highlighted")
	assert.True(t, reporter.HasFailed(s.Reporter()))
}

func TestReport_CollectsContextAndHighlights(t *testing.T) {
	s := newState(t, "a = 1\nb = a + 2", "")
	stmt := s.StudentAST().Children()[1]

	child, err := s.ToChild(Params{ParamStudentAST: stmt, ParamFeedbackContext: "Check the second line."})
	require.NoError(t, err)
	inner, err := child.ToChild(Params{ParamFeedbackContext: feedback.NewComponent("Look at {{.what}}.", map[string]any{"what": "the sum"})})
	require.NoError(t, err)

	err = inner.Report("Expected {{.n}}.", map[string]any{"n": 3})
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, "Check the second line. Look at the sum. Expected 3.", f.Error())

	h, ok := f.Feedback().Highlight()
	require.True(t, ok)
	assert.Equal(t, feedback.Highlight{LineStart: 2, ColumnStart: 1, LineEnd: 2, ColumnEnd: 9}, h)
	assert.Len(t, f.History(), 3)
}

func TestFeedback_OffsetAndPath(t *testing.T) {
	offset := feedback.LineOffset(10, 2)
	s, err := New(Config{
		StudentCode:     "x + 1",
		Dispatcher:      calcDispatcher(),
		HighlightOffset: &offset,
		Path:            "main.calc",
	})
	require.NoError(t, err)

	child, err := s.ToChild(Params{ParamStudentAST: s.StudentAST().Children()[0]})
	require.NoError(t, err)

	h, ok := child.Feedback(feedback.NewComponent("m", nil)).Highlight()
	require.True(t, ok)
	assert.Equal(t, feedback.Highlight{LineStart: 11, ColumnStart: 3, LineEnd: 11, ColumnEnd: 7, Path: "main.calc"}, h)
}

func TestAstPath(t *testing.T) {
	s := newState(t, "a = 1\nb = a + 2", "")
	d := s.Dispatcher()

	path, ok := s.AstPath()
	require.True(t, ok)
	assert.Equal(t, "module", path)

	assign := d.Find("Assign", s.StudentAST())[1]
	nodeState, err := s.ToChild(Params{ParamStudentAST: assign})
	require.NoError(t, err)
	nodeState = nodeState.WithCreator("check_node", map[string]any{"name": "Assign", "index": 1}, s)

	path, ok = nodeState.AstPath()
	require.True(t, ok)
	assert.Equal(t, "second assignment", path)

	target, _ := assign.Field("target")
	edgeState, err := nodeState.ToChild(Params{ParamStudentAST: target})
	require.NoError(t, err)
	edgeState = edgeState.WithCreator("check_edge", map[string]any{"name": "target", "index": selector.NoIndex}, nodeState)

	path, ok = edgeState.AstPath()
	require.True(t, ok)
	assert.Equal(t, "assigned name of the assignment", path)
}

// =============================================================================
// Failures
// =============================================================================

func TestAuthoringError_Located(t *testing.T) {
	s := newState(t, "1", "1")
	child := s.WithCreator("has_code", nil, s)

	cause := errors.New("bad regex")
	bare := NewAuthoringError(nil, "bad pattern", cause)
	assert.Empty(t, bare.History())

	located := bare.Located(child)
	assert.Len(t, located.History(), 2)
	assert.ErrorIs(t, located, cause)
	assert.Equal(t, "bad pattern\nSCT function state history: `has_code`", located.Diagnostic())
	assert.Same(t, located, located.Located(s), "already located errors are kept")
}

func TestAsFailure(t *testing.T) {
	_, ok := AsFailure(errors.New("plain"))
	assert.False(t, ok)

	sf := NewStudentFailure(nil, "x")
	f, ok := AsFailure(sf)
	require.True(t, ok)
	assert.Equal(t, "x", f.Error())
}
