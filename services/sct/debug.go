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
	"log/slog"
	"slices"

	"github.com/datacamp/protowhat/services/sct/feedback"
)

// DebugOnError switches debug mode on from s onwards.
//
// The next failure in the chain is reported as an *AuthoringError with the
// check history, and the reporter is marked failed so the run cannot pass
// while debugging is enabled.
func DebugOnError(s *State) *State {
	s.Reporter().MarkFailed()
	return s.withDebug(true)
}

// Debug stops grading with a message describing the checks that led to s.
//
// Description:
//
//	The message is msg followed by the check history and the last test
//	the reporter ran. With force the result is an *AuthoringError,
//	otherwise a *StudentFailure. Either way the highlight is the current
//	focus.
func Debug(s *State, msg string, force bool) error {
	return debugFailure(s, msg, force)
}

func debugFailure(s *State, msg string, force bool) error {
	text := ""
	if msg != "" {
		text = msg + "\n"
	}
	if checks := CheckHistory(s.History()); len(checks) > 0 {
		text += formatHistory(checks)
	}
	if tests := s.Reporter().Tests(); len(tests) > 0 {
		text += fmt.Sprintf("\nLast test: `%s`", tests[len(tests)-1])
	}

	fb := s.Feedback(feedback.NewComponent(text, nil))
	if force {
		return &AuthoringError{feedback: fb, history: s.History()}
	}
	return &StudentFailure{feedback: fb, history: s.History()}
}

// AllowFunc decides whether an authoring error raised under a debugger
// may be treated as an ordinary failure.
type AllowFunc func(s *State) bool

// InvertFailure allows authoring errors inside a check_not, where a
// failing check is the expected outcome.
func InvertFailure(s *State) bool {
	return slices.Contains(CheckHistory(s.History()), "check_not")
}

// RunDebugged runs fn on a debug-mode copy of s.
//
// Description:
//
//	Failures inside fn are reported with debugging detail. An
//	*AuthoringError for which allow(s) holds is downgraded to a
//	*StudentFailure with the same feedback, so callers that expect
//	failures (such as check_not) treat it as one. Other errors are
//	returned unchanged.
func RunDebugged(s *State, allow AllowFunc, fn func(*State) error) error {
	err := fn(s.withDebug(true))
	var ae *AuthoringError
	if err == nil || !errors.As(err, &ae) {
		return err
	}
	if allow == nil || !allow(s) {
		return err
	}
	slog.Debug("authoring error accepted as failure",
		slog.String("error", ae.Error()))
	return &StudentFailure{feedback: ae.feedback, history: ae.history}
}
