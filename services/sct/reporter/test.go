// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reporter

import (
	"fmt"

	"github.com/datacamp/protowhat/services/sct/feedback"
)

// Test is one recorded pass/fail outcome with its failure message.
//
// A Test runs its check at most once; later Run calls return the stored
// result.
type Test struct {
	name     string
	feedback feedback.Component
	check    func() bool
	ran      bool
	passed   bool
}

// NewTest creates a test named name that passes when check returns true.
func NewTest(name string, fb feedback.Component, check func() bool) *Test {
	return &Test{name: name, feedback: fb, check: check}
}

// Fail creates a test that always fails with fb.
func Fail(fb feedback.Component) *Test {
	return NewTest("fail", fb, func() bool { return false })
}

// Succeed creates a test that always passes.
func Succeed(fb feedback.Component) *Test {
	return NewTest("succeed", fb, func() bool { return true })
}

// Run evaluates the test.
func (t *Test) Run() bool {
	if !t.ran {
		t.passed = t.check != nil && t.check()
		t.ran = true
	}
	return t.passed
}

// Name returns the test name.
func (t *Test) Name() string {
	return t.name
}

// Feedback returns the component shown when the test fails.
func (t *Test) Feedback() feedback.Component {
	return t.feedback
}

// Result returns the outcome and whether the test has run.
func (t *Test) Result() (passed bool, ran bool) {
	return t.passed, t.ran
}

// String renders the test for diagnostics, e.g. fail("Wrong.").
func (t *Test) String() string {
	return fmt.Sprintf("%s(%q)", t.name, t.feedback.Message)
}
