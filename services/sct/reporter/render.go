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
	"regexp"
	"strings"

	"gitlab.com/golang-commonmark/markdown"
)

// paragraph matches a single-line paragraph wrapper.
var paragraph = regexp.MustCompile(`<p>(.*)</p>`)

// MarkdownRenderer renders messages as HTML, unwrapping single-line
// paragraphs so short messages stay inline.
type MarkdownRenderer struct {
	md *markdown.Markdown
}

// NewMarkdownRenderer creates a renderer with raw HTML passthrough and
// without typographic replacements.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{
		md: markdown.New(
			markdown.HTML(true),
			markdown.Linkify(false),
			markdown.Typographer(false),
		),
	}
}

// Render implements Renderer.
func (m *MarkdownRenderer) Render(msg string) string {
	html := m.md.RenderToString([]byte(msg))
	return strings.TrimSpace(paragraph.ReplaceAllString(html, "$1"))
}

// PlainRenderer returns messages unchanged.
type PlainRenderer struct{}

// Render implements Renderer.
func (PlainRenderer) Render(msg string) string {
	return msg
}
