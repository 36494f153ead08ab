// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrinter_PlainVerdict(t *testing.T) {
	tests := []struct {
		name string
		v    Verdict
		want string
	}{
		{"correct", Verdict{Title: "a.py", Status: StatusCorrect, Message: "Great work!"}, "OK: a.py Great work!\n"},
		{"incorrect", Verdict{Status: StatusIncorrect, Message: "Check the first expression.", Location: "1:1-1:5"},
			"FAIL: Check the first expression. (1:1-1:5)\n"},
		{"error", Verdict{Title: "b.py", Status: StatusError, Message: "bad check", Detail: "History:\ncheck_node"},
			"ERROR: b.py bad check\n  History:\n  check_node\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf, ModePlain).Verdict(tt.v)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrinter_PrettyVerdict(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, ModePretty).Verdict(Verdict{Title: "a.py", Status: StatusIncorrect, Message: "Try again", Location: "2:1-2:3"})

	out := buf.String()
	assert.Contains(t, out, "a.py")
	assert.Contains(t, out, "Try again")
	assert.Contains(t, out, "at 2:1-2:3")
	assert.Contains(t, out, IconFailure)
}

func TestPrinter_Summary(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, ModePlain).Summary(2, 1, 1)
	assert.Equal(t, "SUMMARY: 2/4 correct, 1 incorrect, 1 errors\n", buf.String())

	buf.Reset()
	NewPrinter(&buf, ModePretty).Summary(1, 0, 0)
	assert.True(t, strings.Contains(buf.String(), "1/1 correct"))
}

func TestDetectMode_NotTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	assert.Equal(t, ModePlain, DetectMode(f))
}
