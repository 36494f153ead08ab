// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reporter records test outcomes and builds the grading payload.
package reporter

import (
	"github.com/datacamp/protowhat/services/sct/feedback"
)

const (
	// DefaultSuccessMessage is shown when every check passes.
	DefaultSuccessMessage = "Great work!"

	// FailedMessage is shown when the submission was marked failed without
	// a specific failure.
	FailedMessage = "Your submission is not correct. Try again!"

	// ErroredMessage is shown when the submission raised errors that were
	// not allowed.
	ErroredMessage = "Your code generated an error. Fix it and try again!"
)

// =============================================================================
// Runners
// =============================================================================

// Runner executes tests and keeps their record.
type Runner interface {
	// DoTest runs t, records it and returns whether it passed together
	// with the feedback to show on failure.
	DoTest(t *Test) (bool, feedback.Component)

	// Tests returns the recorded tests in execution order.
	Tests() []*Test
}

// TestRunner is the base Runner: it runs each test and keeps it.
type TestRunner struct {
	tests []*Test
}

// NewTestRunner creates an empty runner.
func NewTestRunner() *TestRunner {
	return &TestRunner{}
}

// DoTest implements Runner.
func (r *TestRunner) DoTest(t *Test) (bool, feedback.Component) {
	passed := t.Run()
	r.tests = append(r.tests, t)
	if passed {
		return true, feedback.Component{}
	}
	return false, t.Feedback()
}

// Tests implements Runner.
func (r *TestRunner) Tests() []*Test {
	return append([]*Test(nil), r.tests...)
}

// Failures returns the recorded tests that failed.
func Failures(r Runner) []*Test {
	var out []*Test
	for _, t := range r.Tests() {
		if passed, ran := t.Result(); ran && !passed {
			out = append(out, t)
		}
	}
	return out
}

// HasFailed reports whether any recorded test failed.
func HasFailed(r Runner) bool {
	return len(Failures(r)) > 0
}

// =============================================================================
// Reporter
// =============================================================================

// Observer is notified of recorded tests and built payloads.
type Observer interface {
	ObserveTest(t *Test)
	ObservePayload(p Payload)
}

// Renderer converts a feedback message to the payload's markup.
type Renderer interface {
	Render(msg string) string
}

// Reporter is the per-submission record of a grading run.
//
// Description:
//
//	A Reporter proxies tests to its runner and records them itself, so a
//	child reporter created for an embedded technology keeps its own record
//	while the outermost runner sees every test exactly once. It also
//	carries the run-wide flags: failure mark, execution errors, whether
//	errors are allowed, and the success message.
//
// Thread Safety:
//
//	Not safe for concurrent use. One grading run owns its reporter.
type Reporter struct {
	parent        *Reporter
	runner        Runner
	tests         []*Test
	failed        bool
	errors        bool
	errorsAllowed bool
	successMsg    string
	renderer      Renderer
	observers     []Observer
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithErrors records that executing the submission produced errors.
func WithErrors(errors bool) Option {
	return func(r *Reporter) {
		r.errors = errors
	}
}

// WithRunner sets the runner tests are proxied to.
func WithRunner(runner Runner) Option {
	return func(r *Reporter) {
		if runner != nil {
			r.runner = runner
		}
	}
}

// WithRenderer sets the payload message renderer.
func WithRenderer(renderer Renderer) Option {
	return func(r *Reporter) {
		if renderer != nil {
			r.renderer = renderer
		}
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(r *Reporter) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// New creates a root reporter over a fresh TestRunner that renders
// messages as markdown.
func New(opts ...Option) *Reporter {
	r := &Reporter{
		runner:     NewTestRunner(),
		successMsg: DefaultSuccessMessage,
		renderer:   NewMarkdownRenderer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewChild creates a reporter that proxies to parent and shares its
// renderer and error flag. Run-wide flags set on the child (failure mark,
// allowed errors, success message) are forwarded to parent.
func NewChild(parent *Reporter, opts ...Option) *Reporter {
	base := []Option{
		WithRunner(parent),
		WithRenderer(parent.renderer),
		WithErrors(parent.errors),
	}
	r := New(append(base, opts...)...)
	r.parent = parent
	r.successMsg = parent.successMsg
	return r
}

// DoTest implements Runner.
func (r *Reporter) DoTest(t *Test) (bool, feedback.Component) {
	r.tests = append(r.tests, t)
	passed, fb := r.runner.DoTest(t)
	for _, o := range r.observers {
		o.ObserveTest(t)
	}
	return passed, fb
}

// Tests implements Runner.
func (r *Reporter) Tests() []*Test {
	return append([]*Test(nil), r.tests...)
}

// Runner returns the runner tests are proxied to.
func (r *Reporter) Runner() Runner {
	return r.runner
}

// MarkFailed forces the final payload to be incorrect.
func (r *Reporter) MarkFailed() {
	r.failed = true
	if r.parent != nil {
		r.parent.MarkFailed()
	}
}

// Failed reports whether the run was marked failed.
func (r *Reporter) Failed() bool {
	return r.failed
}

// Errors reports whether the submission produced execution errors.
func (r *Reporter) Errors() bool {
	return r.errors
}

// AllowErrors accepts execution errors in the final payload.
func (r *Reporter) AllowErrors() {
	r.errorsAllowed = true
	if r.parent != nil {
		r.parent.AllowErrors()
	}
}

// ErrorsAllowed reports whether AllowErrors was called.
func (r *Reporter) ErrorsAllowed() bool {
	return r.errorsAllowed
}

// SetSuccessMessage replaces the message shown on success.
func (r *Reporter) SetSuccessMessage(msg string) {
	r.successMsg = msg
	if r.parent != nil {
		r.parent.SetSuccessMessage(msg)
	}
}

// SuccessMessage returns the message shown on success.
func (r *Reporter) SuccessMessage() string {
	return r.successMsg
}

// =============================================================================
// Payload
// =============================================================================

// Payload is the grading verdict sent to the student interface.
type Payload struct {
	Correct bool   `json:"correct"`
	Message string `json:"message"`
	*feedback.Highlight
}

// BuildFailedPayload builds the verdict for a failure.
func (r *Reporter) BuildFailedPayload(fb *feedback.Feedback) Payload {
	p := Payload{Correct: false, Message: r.renderer.Render(fb.Message())}
	if h, ok := fb.Highlight(); ok {
		p.Highlight = &h
	}
	r.notify(p)
	return p
}

// BuildFinalPayload builds the verdict after every check ran.
//
// Description:
//
//	The run is incorrect when it was marked failed or produced errors that
//	were not allowed; otherwise it is correct with the success message.
func (r *Reporter) BuildFinalPayload() Payload {
	unexpectedErrors := r.errors && !r.errorsAllowed
	var p Payload
	switch {
	case unexpectedErrors:
		p = Payload{Correct: false, Message: r.renderer.Render(ErroredMessage)}
	case r.failed:
		p = Payload{Correct: false, Message: r.renderer.Render(FailedMessage)}
	default:
		p = Payload{Correct: true, Message: r.renderer.Render(r.successMsg)}
	}
	r.notify(p)
	return p
}

func (r *Reporter) notify(p Payload) {
	for _, o := range r.observers {
		o.ObservePayload(p)
	}
}
