// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package messaging renders feedback templates and the phrases they use.
package messaging

import (
	"fmt"
	"maps"
	"strings"
	"text/template"
	"text/template/parse"
)

// Render fills a feedback template.
//
// Description:
//
//	Templates use text/template syntax over a map, e.g.
//	"Check the {{.ast_path}}. Could not find the {{.index}}{{.node_name}}.".
//	Missing keys render as the empty string. A message that is not a valid
//	template is returned unchanged so literal braces in author text never
//	break feedback.
//
// Inputs:
//
//	msg  - The template text.
//	data - Template variables. May be nil.
//
// Outputs:
//
//	string - The rendered message.
//	error  - Non-nil when execution fails; the raw message is still returned.
func Render(msg string, data map[string]any) (string, error) {
	if !strings.Contains(msg, "{{") {
		return msg, nil
	}
	tmpl, err := template.New("msg").Parse(msg)
	if err != nil {
		return msg, fmt.Errorf("parsing message template: %w", err)
	}
	// Absent keys would print "<no value>"; give them empty values instead.
	filled := make(map[string]any, len(data))
	maps.Copy(filled, data)
	walkFields(tmpl.Tree.Root, func(idents []string) { fillMissing(filled, idents) })

	var b strings.Builder
	if err := tmpl.Execute(&b, filled); err != nil {
		return msg, fmt.Errorf("executing message template: %w", err)
	}
	return b.String(), nil
}

// walkFields calls fn with the identifiers of every field reference
// (.a.b) in the template tree.
func walkFields(n parse.Node, fn func([]string)) {
	switch n := n.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			walkFields(c, fn)
		}
	case *parse.ActionNode:
		walkFields(n.Pipe, fn)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				walkFields(arg, fn)
			}
		}
	case *parse.FieldNode:
		fn(n.Ident)
	case *parse.IfNode:
		walkBranch(&n.BranchNode, fn)
	case *parse.RangeNode:
		walkBranch(&n.BranchNode, fn)
	case *parse.WithNode:
		walkBranch(&n.BranchNode, fn)
	case *parse.TemplateNode:
		walkFields(n.Pipe, fn)
	}
}

func walkBranch(b *parse.BranchNode, fn func([]string)) {
	walkFields(b.Pipe, fn)
	walkFields(b.List, fn)
	walkFields(b.ElseList, fn)
}

// fillMissing sets the empty string at the path idents of data when the
// value there is absent or nil, creating intermediate maps. Nested maps are
// copied before they are filled so the caller's data is never modified.
func fillMissing(data map[string]any, idents []string) {
	if len(idents) == 0 {
		return
	}
	v := data[idents[0]]
	if len(idents) == 1 {
		if v == nil {
			data[idents[0]] = ""
		}
		return
	}
	var m map[string]any
	switch v := v.(type) {
	case nil:
		m = map[string]any{}
	case map[string]any:
		m = maps.Clone(v)
	default:
		return
	}
	data[idents[0]] = m
	fillMissing(m, idents[1:])
}
