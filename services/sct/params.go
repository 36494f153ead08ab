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
	"fmt"

	"github.com/datacamp/protowhat/services/sct/feedback"
	"github.com/datacamp/protowhat/services/sct/reporter"
	"github.com/datacamp/protowhat/services/sct/selector"
	"github.com/datacamp/protowhat/services/sct/tree"
)

// Parameter names accepted by ToChild and by embedded technologies.
const (
	ParamStudentCode          = "student_code"
	ParamSolutionCode         = "solution_code"
	ParamPreExerciseCode      = "pre_exercise_code"
	ParamStudentConn          = "student_conn"
	ParamSolutionConn         = "solution_conn"
	ParamStudentResult        = "student_result"
	ParamSolutionResult       = "solution_result"
	ParamReporter             = "reporter"
	ParamForceDiagnose        = "force_diagnose"
	ParamHighlightOffset      = "highlight_offset"
	ParamHighlightingDisabled = "highlighting_disabled"
	ParamFeedbackContext      = "feedback_context"
	ParamStudentAST           = "student_ast"
	ParamSolutionAST          = "solution_ast"
	ParamDispatcher           = "ast_dispatcher"
	ParamHighlight            = "highlight"
	ParamPath                 = "path"
)

// StandardParams lists every parameter a State understands, in the order
// embedding copies them.
var StandardParams = []string{
	ParamStudentCode, ParamSolutionCode, ParamPreExerciseCode,
	ParamStudentConn, ParamSolutionConn,
	ParamStudentResult, ParamSolutionResult,
	ParamReporter, ParamForceDiagnose,
	ParamHighlightOffset, ParamHighlightingDisabled, ParamFeedbackContext,
	ParamStudentAST, ParamSolutionAST, ParamDispatcher,
	ParamHighlight, ParamPath,
}

// Params is a set of named state parameters.
type Params map[string]any

var (
	// ErrUnknownParam is returned for a parameter a state does not accept.
	ErrUnknownParam = errors.New("unknown state parameter")

	// ErrInvalidParam is returned for a parameter of the wrong type.
	ErrInvalidParam = errors.New("invalid state parameter")
)

func isStandard(name string) bool {
	for _, p := range StandardParams {
		if p == name {
			return true
		}
	}
	return false
}

// apply assigns p onto cfg. Keys outside StandardParams go to cfg.Extra
// when extra allows them.
func (p Params) apply(cfg *Config, extra func(string) bool) error {
	for name, v := range p {
		if err := setParam(cfg, name, v, extra); err != nil {
			return err
		}
	}
	return nil
}

func setParam(cfg *Config, name string, v any, extra func(string) bool) error {
	invalid := func(want string) error {
		return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidParam, name, want, v)
	}

	switch name {
	case ParamStudentCode, ParamSolutionCode, ParamPreExerciseCode, ParamPath:
		s, ok := v.(string)
		if !ok {
			return invalid("a string")
		}
		switch name {
		case ParamStudentCode:
			cfg.StudentCode = s
		case ParamSolutionCode:
			cfg.SolutionCode = s
		case ParamPreExerciseCode:
			cfg.PreExerciseCode = s
		default:
			cfg.Path = s
		}
	case ParamStudentConn:
		cfg.StudentConn = v
	case ParamSolutionConn:
		cfg.SolutionConn = v
	case ParamStudentResult:
		cfg.StudentResult = v
	case ParamSolutionResult:
		cfg.SolutionResult = v
	case ParamReporter:
		r, ok := v.(*reporter.Reporter)
		if !ok || r == nil {
			return invalid("a *reporter.Reporter")
		}
		cfg.Reporter = r
	case ParamForceDiagnose, ParamHighlightingDisabled:
		b, ok := v.(bool)
		if !ok {
			return invalid("a bool")
		}
		if name == ParamForceDiagnose {
			cfg.ForceDiagnose = b
		} else {
			cfg.HighlightingDisabled = b
		}
	case ParamHighlightOffset:
		switch o := v.(type) {
		case nil:
			cfg.HighlightOffset = nil
		case feedback.Offset:
			cfg.HighlightOffset = &o
		case *feedback.Offset:
			cfg.HighlightOffset = o
		default:
			return invalid("a feedback.Offset")
		}
	case ParamFeedbackContext:
		switch c := v.(type) {
		case nil:
			cfg.FeedbackContext = nil
		case string:
			comp := feedback.NewComponent(c, nil)
			cfg.FeedbackContext = &comp
		case feedback.Component:
			cfg.FeedbackContext = &c
		case *feedback.Component:
			cfg.FeedbackContext = c
		default:
			return invalid("a string or feedback.Component")
		}
	case ParamStudentAST, ParamSolutionAST, ParamHighlight:
		var n tree.Node
		if v != nil {
			var ok bool
			if n, ok = v.(tree.Node); !ok {
				return invalid("a tree.Node")
			}
		}
		switch name {
		case ParamStudentAST:
			cfg.StudentAST = n
		case ParamSolutionAST:
			cfg.SolutionAST = n
		default:
			cfg.Highlight = n
		}
	case ParamDispatcher:
		d, ok := v.(*selector.Dispatcher)
		if !ok || d == nil {
			return invalid("a *selector.Dispatcher")
		}
		cfg.Dispatcher = d
	default:
		if extra == nil || !extra(name) {
			return fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
		if cfg.Extra == nil {
			cfg.Extra = Params{}
		}
		cfg.Extra[name] = v
	}
	return nil
}
