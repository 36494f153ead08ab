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
	"strings"

	"github.com/datacamp/protowhat/services/sct/feedback"
)

// Failure is an error carrying the feedback and state history of the
// point where grading stopped.
type Failure interface {
	error
	Feedback() *feedback.Feedback
	History() []*State
}

// StudentFailure means the submission is wrong. Its message is shown to
// the student.
type StudentFailure struct {
	feedback *feedback.Feedback
	history  []*State
}

// NewStudentFailure creates a student failure described by s.
func NewStudentFailure(s *State, msg string) *StudentFailure {
	c := feedback.NewComponent(msg, nil)
	if s == nil {
		return &StudentFailure{feedback: feedback.New(c)}
	}
	return &StudentFailure{feedback: s.Feedback(c), history: s.History()}
}

// Error implements the error interface.
func (e *StudentFailure) Error() string {
	return e.feedback.Message()
}

// Feedback returns the failure's feedback.
func (e *StudentFailure) Feedback() *feedback.Feedback {
	return e.feedback
}

// History returns the states from the root to the failing state.
func (e *StudentFailure) History() []*State {
	return e.history
}

// AuthoringError means the checks themselves are wrong. It is meant for
// the exercise author, never for the student.
type AuthoringError struct {
	feedback *feedback.Feedback
	history  []*State
	cause    error
}

// NewAuthoringError creates an authoring error described by s. s may be
// nil when no state is available; cause may be nil.
func NewAuthoringError(s *State, msg string, cause error) *AuthoringError {
	c := feedback.NewComponent(msg, nil)
	if s == nil {
		return &AuthoringError{feedback: feedback.New(c), cause: cause}
	}
	return &AuthoringError{feedback: s.Feedback(c), history: s.History(), cause: cause}
}

// AuthoringErrorf creates an authoring error with a formatted message.
func AuthoringErrorf(s *State, format string, args ...any) *AuthoringError {
	return NewAuthoringError(s, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface.
func (e *AuthoringError) Error() string {
	return e.feedback.Message()
}

// Unwrap returns the underlying error, if any.
func (e *AuthoringError) Unwrap() error {
	return e.cause
}

// Feedback returns the error's feedback.
func (e *AuthoringError) Feedback() *feedback.Feedback {
	return e.feedback
}

// History returns the states from the root to the failing state.
func (e *AuthoringError) History() []*State {
	return e.history
}

// Located returns e, or a copy described by s when e has no history yet.
func (e *AuthoringError) Located(s *State) *AuthoringError {
	if len(e.history) > 0 || s == nil {
		return e
	}
	return &AuthoringError{feedback: s.Feedback(e.feedback.Conclusion()), history: s.History(), cause: e.cause}
}

// Diagnostic renders the message with the check history, for authors.
func (e *AuthoringError) Diagnostic() string {
	msg := e.Error()
	if checks := CheckHistory(e.history); len(checks) > 0 && !strings.Contains(msg, historyLabel) {
		msg += "\n" + formatHistory(checks)
	}
	return msg
}

// IsStudentFailure reports whether err is or wraps a *StudentFailure.
func IsStudentFailure(err error) bool {
	var f *StudentFailure
	return errors.As(err, &f)
}

// IsAuthoringError reports whether err is or wraps an *AuthoringError.
func IsAuthoringError(err error) bool {
	var f *AuthoringError
	return errors.As(err, &f)
}

// AsFailure extracts the Failure in err's chain, if any.
func AsFailure(err error) (Failure, bool) {
	var sf *StudentFailure
	if errors.As(err, &sf) {
		return sf, true
	}
	var ae *AuthoringError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// CheckHistory returns the creator types along history, skipping roots.
func CheckHistory(history []*State) []string {
	var out []string
	for _, s := range history {
		if t := s.creatorType(); t != "" {
			out = append(out, t)
		}
	}
	return out
}

const historyLabel = "SCT function state history:"

func formatHistory(checks []string) string {
	return fmt.Sprintf("%s `%s`", historyLabel, strings.Join(checks, " > "))
}
