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
	"encoding/json"
	"testing"

	"github.com/datacamp/protowhat/services/sct/feedback"
	"github.com/datacamp/protowhat/services/sct/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	tests    []string
	payloads []Payload
}

func (o *recordingObserver) ObserveTest(t *Test)      { o.tests = append(o.tests, t.Name()) }
func (o *recordingObserver) ObservePayload(p Payload) { o.payloads = append(o.payloads, p) }

// =============================================================================
// Tests and runners
// =============================================================================

func TestTest_RunsOnce(t *testing.T) {
	calls := 0
	tst := NewTest("count", feedback.NewComponent("m", nil), func() bool {
		calls++
		return true
	})

	_, ran := tst.Result()
	assert.False(t, ran)
	assert.True(t, tst.Run())
	assert.True(t, tst.Run())
	assert.Equal(t, 1, calls)
	assert.Equal(t, `count("m")`, tst.String())
}

func TestTestRunner(t *testing.T) {
	r := NewTestRunner()

	passed, fb := r.DoTest(Succeed(feedback.NewComponent("ok", nil)))
	assert.True(t, passed)
	assert.True(t, fb.IsZero())

	passed, fb = r.DoTest(Fail(feedback.NewComponent("wrong", nil)))
	assert.False(t, passed)
	assert.Equal(t, "wrong", fb.Message)

	assert.Len(t, r.Tests(), 2)
	assert.Len(t, Failures(r), 1)
	assert.True(t, HasFailed(r))
}

func TestReporter_ChildProxiesToParent(t *testing.T) {
	root := New()
	child := NewChild(root)

	_, _ = child.DoTest(Fail(feedback.NewComponent("inner", nil)))
	_, _ = root.DoTest(Succeed(feedback.NewComponent("outer", nil)))

	assert.Len(t, child.Tests(), 1, "child records its own tests")
	assert.Len(t, root.Tests(), 2, "root sees every test")
	assert.Len(t, root.Runner().Tests(), 2, "base runner ran every test once")
	assert.True(t, HasFailed(root))
}

func TestReporter_ChildForwardsFlags(t *testing.T) {
	root := New(WithErrors(true))
	child := NewChild(root)
	assert.True(t, child.Errors())

	child.AllowErrors()
	child.SetSuccessMessage("Nice!")
	child.MarkFailed()

	assert.True(t, root.ErrorsAllowed())
	assert.Equal(t, "Nice!", root.SuccessMessage())
	assert.True(t, root.Failed())
}

// =============================================================================
// Payloads
// =============================================================================

func TestBuildFinalPayload(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *Reporter)
		opts  []Option
		want  Payload
	}{
		{"success", func(*Reporter) {}, nil, Payload{Correct: true, Message: DefaultSuccessMessage}},
		{"custom success", func(r *Reporter) { r.SetSuccessMessage("Well done") }, nil,
			Payload{Correct: true, Message: "Well done"}},
		{"marked failed", func(r *Reporter) { r.MarkFailed() }, nil,
			Payload{Correct: false, Message: FailedMessage}},
		{"errors", func(*Reporter) {}, []Option{WithErrors(true)},
			Payload{Correct: false, Message: ErroredMessage}},
		{"errors allowed", func(r *Reporter) { r.AllowErrors() }, []Option{WithErrors(true)},
			Payload{Correct: true, Message: DefaultSuccessMessage}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.opts...)
			tt.setup(r)
			assert.Equal(t, tt.want, r.BuildFinalPayload())
		})
	}
}

func TestBuildFailedPayload(t *testing.T) {
	obs := &recordingObserver{}
	r := New(WithObserver(obs))

	node := tree.New("x").WithPosition(tree.Position{LineStart: 1, ColumnStart: 0, LineEnd: 1, ColumnEnd: 4})
	fb := feedback.New(feedback.NewComponent("Check the `sum`.", nil), feedback.WithHighlight(node))

	p := r.BuildFailedPayload(fb)
	assert.False(t, p.Correct)
	assert.Equal(t, "Check the <code>sum</code>.", p.Message)
	require.NotNil(t, p.Highlight)
	assert.Equal(t, 1, p.ColumnStart)
	assert.Equal(t, 5, p.ColumnEnd)
	require.Len(t, obs.payloads, 1)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"correct":false,"message":"Check the <code>sum</code>.","line_start":1,"column_start":1,"line_end":1,"column_end":5}`,
		string(out))
}

func TestBuildFailedPayload_NoHighlight(t *testing.T) {
	r := New(WithRenderer(PlainRenderer{}))
	p := r.BuildFailedPayload(feedback.FromMessage("plain *text*"))

	assert.Equal(t, "plain *text*", p.Message)
	assert.Nil(t, p.Highlight)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"correct":false,"message":"plain *text*"}`, string(out))
}

func TestMarkdownRenderer(t *testing.T) {
	m := NewMarkdownRenderer()
	assert.Equal(t, "Great work!", m.Render("Great work!"))
	assert.Equal(t, "Use <em>one</em> loop.", m.Render("Use *one* loop."))
	assert.Equal(t, "first\nsecond", m.Render("first\n\nsecond"))
}

func TestReporter_ObservesTests(t *testing.T) {
	obs := &recordingObserver{}
	r := New(WithObserver(obs))
	r.DoTest(Fail(feedback.NewComponent("x", nil)))
	assert.Equal(t, []string{"fail"}, obs.tests)
}
