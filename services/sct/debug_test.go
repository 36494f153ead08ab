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
	"testing"

	"github.com/datacamp/protowhat/services/sct/feedback"
	"github.com/datacamp/protowhat/services/sct/reporter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugOnError(t *testing.T) {
	s := newState(t, "1 + 1", "3 + 3")

	dbg := DebugOnError(s)
	assert.True(t, dbg.Debug())
	assert.False(t, s.Debug())
	assert.True(t, s.Reporter().Failed(), "a debugged run never passes")

	err := dbg.Report("Wrong sum.", nil)
	require.Error(t, err)
	assert.True(t, IsAuthoringError(err))
	assert.Contains(t, err.Error(), "Wrong sum.")
	assert.Contains(t, err.Error(), "Debug on error:")
	assert.Contains(t, err.Error(), "Last test: `fail(\"Wrong sum.\")`")
}

func TestDebug(t *testing.T) {
	s := newState(t, "1 + 1", "3 + 3")
	child := s.WithCreator("check_node", map[string]any{"name": "Expr", "index": 0}, s)
	require.NoError(t, child.DoTest(reporter.Succeed(feedback.NewComponent("ok", nil))))

	t.Run("student failure by default", func(t *testing.T) {
		err := Debug(child, "Stopped here.", false)
		assert.True(t, IsStudentFailure(err))
		assert.Contains(t, err.Error(), "Stopped here.")
		assert.Contains(t, err.Error(), "SCT function state history: `check_node`")
		assert.Contains(t, err.Error(), "Last test: `succeed(\"ok\")`")
	})

	t.Run("authoring error when forced", func(t *testing.T) {
		err := Debug(child, "", true)
		assert.True(t, IsAuthoringError(err))
	})
}

func TestRunDebugged(t *testing.T) {
	s := newState(t, "1 + 1", "3 + 3")
	report := func(st *State) error { return st.Report("Failed inside.", nil) }

	t.Run("passes through success", func(t *testing.T) {
		err := RunDebugged(s, InvertFailure, func(*State) error { return nil })
		assert.NoError(t, err)
	})

	t.Run("keeps authoring errors outside check_not", func(t *testing.T) {
		err := RunDebugged(s, InvertFailure, report)
		assert.True(t, IsAuthoringError(err))
	})

	t.Run("downgrades inside check_not", func(t *testing.T) {
		inverted := s.WithCreator("check_not", nil, s)
		err := RunDebugged(inverted, InvertFailure, report)
		require.Error(t, err)
		assert.True(t, IsStudentFailure(err))
		assert.False(t, IsAuthoringError(err))
		assert.Contains(t, err.Error(), "Failed inside.")
	})

	t.Run("nil allow never downgrades", func(t *testing.T) {
		inverted := s.WithCreator("check_not", nil, s)
		err := RunDebugged(inverted, nil, report)
		assert.True(t, IsAuthoringError(err))
	})
}
