// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package script_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datacamp/protowhat/services/sct"
	"github.com/datacamp/protowhat/services/sct/chain"
	"github.com/datacamp/protowhat/services/sct/checks"
	"github.com/datacamp/protowhat/services/sct/internal/sctest"
	"github.com/datacamp/protowhat/services/sct/reporter"
	"github.com/datacamp/protowhat/services/sct/script"
	"github.com/datacamp/protowhat/services/sct/selector"
)

const orScript = `
name: first-expression
technology: calc
checks:
  - check_node: {name: Expr, index: 0}
  - check_or:
      checks:
        - has_equal_ast: {}
        - - has_code: {text: "3", fixed: true}
          - has_parsed_ast
`

const tomlScript = `
technology = "calc"
success_msg = "Great!"

[[checks]]
[checks.check_node]
name = "Expr"
index = 1

[[checks]]
has_equal_ast = {}
`

func registry(t *testing.T) *chain.Registry {
	t.Helper()
	reg := chain.NewRegistry()
	require.NoError(t, checks.Register(reg))
	return reg
}

func newState(t *testing.T, student, solution string) *sct.State {
	t.Helper()
	p := sctest.NewParser()
	s, err := sct.New(sct.Config{
		StudentCode:  student,
		SolutionCode: solution,
		Dispatcher:   selector.NewDispatcher(p.Catalogue(), p),
		Reporter:     reporter.New(reporter.WithRenderer(reporter.PlainRenderer{})),
	})
	require.NoError(t, err)
	return s
}

func TestParse_YAML(t *testing.T) {
	s, err := script.Parse([]byte(orScript), script.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "first-expression", s.Name)
	assert.Equal(t, "calc", s.Technology)
	assert.Len(t, s.Checks, 2)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format script.Format
		want   error
	}{
		{"missing technology", "checks: [has_parsed_ast]", script.FormatYAML, script.ErrInvalidScript},
		{"no checks", "technology: calc\nchecks: []", script.FormatYAML, script.ErrInvalidScript},
		{"unknown key", "technology: calc\nchekcs: [fail]", script.FormatYAML, script.ErrInvalidScript},
		{"bad toml", "technology = ", script.FormatTOML, script.ErrInvalidScript},
		{"unknown format", "", script.Format("ini"), script.ErrUnknownFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := script.Parse([]byte(tt.data), tt.format)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFormatOf(t *testing.T) {
	f, err := script.FormatOf("sct.YML")
	require.NoError(t, err)
	assert.Equal(t, script.FormatYAML, f)

	f, err = script.FormatOf("sct.toml")
	require.NoError(t, err)
	assert.Equal(t, script.FormatTOML, f)

	_, err = script.FormatOf("sct.json")
	assert.ErrorIs(t, err, script.ErrUnknownFormat)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exercise_1.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlScript), 0o644))

	s, err := script.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "exercise_1", s.Name)
	assert.Equal(t, "Great!", s.SuccessMsg)
	assert.Len(t, s.Checks, 2)

	_, err = script.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

// =============================================================================
// Compile
// =============================================================================

func TestCompile_NestedChains(t *testing.T) {
	reg := registry(t)
	s, err := script.Parse([]byte(orScript), script.FormatYAML)
	require.NoError(t, err)

	c, err := script.Compile(reg, s)
	require.NoError(t, err)
	require.Len(t, c.Calls(), 2)
	assert.Equal(t, checks.NameCheckNode, c.Calls()[0].Name)
	assert.Equal(t, checks.NameCheckOr, c.Calls()[1].Name)

	t.Run("both alternatives fail", func(t *testing.T) {
		_, err := c.Run(newState(t, "1 + 1", "3 + 3"))
		require.Error(t, err)
		assert.True(t, sct.IsStudentFailure(err))
		assert.Equal(t, "Check the first expression. The checker expected to find `3 + 3` in there.", err.Error())
	})

	t.Run("second alternative passes", func(t *testing.T) {
		_, err := c.Run(newState(t, "3 + 1", "3 + 3"))
		assert.NoError(t, err)
	})
}

func TestCompile_TOMLSettings(t *testing.T) {
	reg := registry(t)
	s, err := script.Parse([]byte(tomlScript), script.FormatTOML)
	require.NoError(t, err)

	c, err := script.Compile(reg, s)
	require.NoError(t, err)

	st := newState(t, "1\n2", "1\n2")
	_, err = c.Run(st)
	require.NoError(t, err)

	payload := st.Reporter().BuildFinalPayload()
	assert.True(t, payload.Correct)
	assert.Equal(t, "Great!", payload.Message)
}

func TestCompile_Errors(t *testing.T) {
	reg := registry(t)
	tests := []struct {
		name   string
		checks []any
		want   error
	}{
		{"unknown check", []any{"chek_node"}, chain.ErrUnknownCheck},
		{"unknown nested check", []any{map[string]any{"multi": map[string]any{"checks": []any{"nope"}}}}, chain.ErrUnknownCheck},
		{"two names", []any{map[string]any{"fail": nil, "has_code": nil}}, script.ErrInvalidStep},
		{"args not a map", []any{map[string]any{"fail": "oops"}}, script.ErrInvalidStep},
		{"not a step", []any{42}, script.ErrInvalidStep},
		{"checks not a list", []any{map[string]any{"multi": map[string]any{"checks": 3}}}, script.ErrInvalidStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := script.Compile(reg, &script.Script{Technology: "calc", Checks: tt.checks})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
