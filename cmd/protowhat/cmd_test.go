// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datacamp/protowhat/services/sct/checks"
)

const firstExprScript = `
name: first-expression
technology: python
checks:
  - check_node: {name: Expr, index: 0}
  - has_equal_ast
`

// workspace writes the script, a solution and the named student files into
// a temp dir and returns the dir.
func workspace(t *testing.T, solution string, students map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("sct.yaml", firstExprScript)
	write("solution.py", solution)
	for name, code := range students {
		write(name, code)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestGrade(t *testing.T) {
	dir := workspace(t, "3 + 3", map[string]string{
		"good.py": "3 + 3",
		"bad.py":  "1 + 1",
	})
	base := []string{
		"grade",
		"--script", filepath.Join(dir, "sct.yaml"),
		"--solution", filepath.Join(dir, "solution.py"),
		"--output", "plain",
	}

	t.Run("correct exits 0", func(t *testing.T) {
		code, out, errOut := runCLI(t, append(base, filepath.Join(dir, "good.py"))...)
		assert.Equal(t, exitCorrect, code, errOut)
		assert.Contains(t, out, "OK:")
		assert.Contains(t, out, "Great work!")
	})

	t.Run("incorrect exits 1 with feedback", func(t *testing.T) {
		code, out, errOut := runCLI(t, append(base, filepath.Join(dir, "bad.py"))...)
		assert.Equal(t, exitIncorrect, code)
		assert.Empty(t, errOut)
		assert.Contains(t, out, "FAIL:")
		assert.Contains(t, out, "The checker expected to find `3 + 3` in there.")
		assert.Contains(t, out, "(1:1-1:5)")
	})

	t.Run("json output", func(t *testing.T) {
		args := append([]string{}, base...)
		args[len(args)-1] = "json"
		code, out, _ := runCLI(t, append(args, filepath.Join(dir, "bad.py"))...)
		assert.Equal(t, exitIncorrect, code)

		var res struct {
			Outcome string `json:"outcome"`
			Payload struct {
				Correct bool   `json:"correct"`
				Message string `json:"message"`
			} `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "incorrect", res.Outcome)
		assert.False(t, res.Payload.Correct)
		assert.Contains(t, res.Payload.Message, "<code>3 + 3</code>")
	})

	t.Run("missing script exits 2", func(t *testing.T) {
		code, _, errOut := runCLI(t, "grade", "--output", "plain", filepath.Join(dir, "good.py"))
		assert.Equal(t, exitError, code)
		assert.Contains(t, errOut, "no check script")
	})

	t.Run("authoring error exits 2", func(t *testing.T) {
		bad := filepath.Join(dir, "index.yaml")
		require.NoError(t, os.WriteFile(bad, []byte(strings.Replace(firstExprScript, "index: 0", "index: 5", 1)), 0o644))
		code, out, errOut := runCLI(t, "grade", "--script", bad,
			"--solution", filepath.Join(dir, "solution.py"), "--output", "plain",
			filepath.Join(dir, "good.py"))
		assert.Equal(t, exitError, code)
		assert.Contains(t, out, "ERROR:")
		assert.Contains(t, errOut, "checks failed to run")
	})
}

func TestBatch(t *testing.T) {
	dir := workspace(t, "3 + 3", map[string]string{
		"a.py": "3 + 3",
		"b.py": "3 + 3",
		"c.py": "1 + 1",
	})
	code, out, _ := runCLI(t, "batch",
		"--script", filepath.Join(dir, "sct.yaml"),
		"--solution", filepath.Join(dir, "solution.py"),
		"--output", "plain", "--concurrency", "2",
		filepath.Join(dir, "a.py"), filepath.Join(dir, "b.py"), filepath.Join(dir, "c.py"))

	assert.Equal(t, exitIncorrect, code)
	assert.Contains(t, out, "SUMMARY: 2/3 correct, 1 incorrect, 0 errors")
	// Results are printed in argument order.
	assert.Less(t, strings.Index(out, "a.py"), strings.Index(out, "c.py"))
}

func TestMetricsFile(t *testing.T) {
	dir := workspace(t, "3 + 3", map[string]string{"good.py": "3 + 3"})
	metricsPath := filepath.Join(dir, "metrics.prom")

	code, _, errOut := runCLI(t, "grade",
		"--script", filepath.Join(dir, "sct.yaml"),
		"--solution", filepath.Join(dir, "solution.py"),
		"--output", "plain", "--metrics-file", metricsPath,
		filepath.Join(dir, "good.py"))
	require.Equal(t, exitCorrect, code, errOut)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `protowhat_sct_payloads_total{outcome="correct"} 1`)
}

func TestChecks(t *testing.T) {
	code, out, _ := runCLI(t, "checks")
	assert.Equal(t, exitCorrect, code)
	for _, name := range []string{checks.NameCheckNode, checks.NameHasEqualAST, checks.NameCheckOr} {
		assert.Contains(t, out, name+"\n")
	}
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "x.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1\n"), 0o644))

	t.Run("json", func(t *testing.T) {
		code, out, errOut := runCLI(t, "dump", "-l", "python", file)
		require.Equal(t, exitCorrect, code, errOut)
		var root map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &root))
		assert.Equal(t, "module", root["type"])
	})

	t.Run("repr", func(t *testing.T) {
		code, out, _ := runCLI(t, "dump", "-l", "python", "--repr", file)
		require.Equal(t, exitCorrect, code)
		assert.True(t, strings.HasPrefix(out, "module("))
		assert.Contains(t, out, "assignment(")
	})

	t.Run("no language", func(t *testing.T) {
		code, _, errOut := runCLI(t, "dump", file)
		assert.Equal(t, exitError, code)
		assert.Contains(t, errOut, "no language")
	})

	t.Run("bad format", func(t *testing.T) {
		code, _, _ := runCLI(t, "dump", "-l", "python", "--format", "xml", file)
		assert.Equal(t, exitError, code)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("yaml resolves relative paths", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "protowhat.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
script: checks/sct.yaml
solution: /abs/solution.py
output: plain
concurrency: 4
log:
  level: debug
`), 0o644))

		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "checks", "sct.yaml"), cfg.Script)
		assert.Equal(t, "/abs/solution.py", cfg.Solution)
		assert.Equal(t, "plain", cfg.Output)
		assert.Equal(t, 4, cfg.Concurrency)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("toml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "protowhat.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
technology = "sql"
unsafe_parsing = true

[log]
json = true
`), 0o644))

		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "sql", cfg.Technology)
		assert.True(t, cfg.UnsafeParsing)
		assert.True(t, cfg.Log.JSON)
		assert.Equal(t, "auto", cfg.Output)
	})

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown field", "c.yaml", "scrpit: x.yaml\n"},
		{"bad output", "c.yaml", "output: html\n"},
		{"negative concurrency", "c.toml", "concurrency = -1\n"},
		{"bad level", "c.yaml", "log: {level: loud}\n"},
		{"unsupported extension", "c.ini", "output = plain\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := loadConfig(path)
			assert.ErrorIs(t, err, errInvalidConfig)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitCorrect, exitCode(nil))
	assert.Equal(t, exitIncorrect, exitCode(errIncorrect))
	assert.Equal(t, exitIncorrect, exitCode(fmt.Errorf("wrapped: %w", errIncorrect)))
	assert.Equal(t, exitError, exitCode(errCheckFailed))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
}

func TestRelevant(t *testing.T) {
	targets := []string{"work/sub.py", "/abs/sct.yaml"}
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"write to target", fsnotify.Event{Name: "work/sub.py", Op: fsnotify.Write}, true},
		{"create of target", fsnotify.Event{Name: "/abs/sct.yaml", Op: fsnotify.Create}, true},
		{"unclean path", fsnotify.Event{Name: "work/./sub.py", Op: fsnotify.Write}, true},
		{"other file", fsnotify.Event{Name: "work/other.py", Op: fsnotify.Write}, false},
		{"chmod only", fsnotify.Event{Name: "work/sub.py", Op: fsnotify.Chmod}, false},
		{"remove", fsnotify.Event{Name: "work/sub.py", Op: fsnotify.Remove}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.ev, targets))
		})
	}
}

func TestWatchLoop(t *testing.T) {
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, events, errs, []string{"sub.py"}, 20*time.Millisecond, func() {
			runs.Add(1)
		})
	}()

	// A burst of writes is graded once.
	for i := 0; i < 5; i++ {
		events <- fsnotify.Event{Name: "sub.py", Op: fsnotify.Write}
	}
	events <- fsnotify.Event{Name: "other.py", Op: fsnotify.Write}
	errs <- errors.New("transient")
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	events <- fsnotify.Event{Name: "sub.py", Op: fsnotify.Create}
	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch loop did not stop")
	}
}
