// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders grading verdicts for terminals.
//
// Output is styled with lipgloss when writing to a terminal and falls back
// to plain "OK:" / "FAIL:" / "ERROR:" lines otherwise, so piped output
// stays grep-friendly.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette.
var (
	ColorTealBright = lipgloss.Color("#2CD7C7")
	ColorTealDeep   = lipgloss.Color("#16858E")
	ColorSlate      = lipgloss.Color("#2C4A54")
	ColorWarning    = lipgloss.Color("#F4D03F")
	ColorError      = lipgloss.Color("#E74C3C")
)

// Styles are the pre-configured lipgloss styles.
var Styles = struct {
	Title    lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icons.
const (
	IconSuccess = "✓"
	IconFailure = "✗"
	IconError   = "⚠"
)

// Mode selects how output is rendered.
type Mode int

const (
	// ModePlain writes unstyled, line-oriented output.
	ModePlain Mode = iota

	// ModePretty writes styled output for terminals.
	ModePretty
)

// DetectMode returns ModePretty when f is a terminal.
func DetectMode(f *os.File) Mode {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModePretty
	}
	return ModePlain
}

// Status is the outcome of one verdict.
type Status int

const (
	StatusCorrect Status = iota
	StatusIncorrect
	StatusError
)

// Verdict is what the printer shows for one graded submission.
type Verdict struct {
	// Title names the submission, e.g. its file name.
	Title string

	Status Status

	// Message is the feedback shown to the student.
	Message string

	// Location is the highlighted code range, e.g. "2:1-2:9".
	Location string

	// Detail is extra text for authors, such as a check history.
	Detail string
}

// Printer writes verdicts.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Verdict prints v.
func (p *Printer) Verdict(v Verdict) {
	if p.mode == ModePlain {
		p.plainVerdict(v)
		return
	}

	var head string
	switch v.Status {
	case StatusCorrect:
		head = Styles.Success.Render(IconSuccess + " correct")
	case StatusIncorrect:
		head = Styles.Warning.Render(IconFailure + " incorrect")
	default:
		head = Styles.Error.Render(IconError + " error")
	}
	if v.Title != "" {
		head = Styles.Title.Render(v.Title) + "  " + head
	}

	lines := []string{head}
	if v.Message != "" {
		lines = append(lines, v.Message)
	}
	if v.Location != "" {
		lines = append(lines, Styles.Muted.Render("at "+v.Location))
	}
	if v.Detail != "" {
		lines = append(lines, Styles.Muted.Render(v.Detail))
	}

	box := Styles.Box
	if v.Status == StatusError {
		box = Styles.ErrorBox
	}
	fmt.Fprintln(p.w, box.Render(strings.Join(lines, "\n")))
}

func (p *Printer) plainVerdict(v Verdict) {
	label := map[Status]string{StatusCorrect: "OK", StatusIncorrect: "FAIL", StatusError: "ERROR"}[v.Status]
	parts := []string{label + ":"}
	if v.Title != "" {
		parts = append(parts, v.Title)
	}
	if v.Message != "" {
		parts = append(parts, v.Message)
	}
	if v.Location != "" {
		parts = append(parts, "("+v.Location+")")
	}
	fmt.Fprintln(p.w, strings.Join(parts, " "))
	if v.Detail != "" {
		for _, line := range strings.Split(v.Detail, "\n") {
			fmt.Fprintln(p.w, "  "+line)
		}
	}
}

// Summary prints the counts of a batch run.
func (p *Printer) Summary(correct, incorrect, errored int) {
	total := correct + incorrect + errored
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "SUMMARY: %d/%d correct, %d incorrect, %d errors\n", correct, total, incorrect, errored)
		return
	}
	fmt.Fprintf(p.w, "%s %s  %s  %s\n",
		Styles.Title.Render("Summary"),
		Styles.Success.Render(fmt.Sprintf("%d/%d correct", correct, total)),
		Styles.Warning.Render(fmt.Sprintf("%d incorrect", incorrect)),
		Styles.Error.Render(fmt.Sprintf("%d errors", errored)))
}

// Info prints a secondary line, e.g. "watching main.py".
func (p *Printer) Info(text string) {
	if p.mode == ModePlain {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
}
