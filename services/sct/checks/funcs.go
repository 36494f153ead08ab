// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checks

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/datacamp/protowhat/services/sct"
	"github.com/datacamp/protowhat/services/sct/chain"
	"github.com/datacamp/protowhat/services/sct/feedback"
	"github.com/datacamp/protowhat/services/sct/selector"
	"github.com/datacamp/protowhat/services/sct/tree"
)

// Default feedback templates.
const (
	MsgCheckNodeMissing = "Check the {{.ast_path}}. Could not find the {{.index}}{{.node_name}}."
	MsgCheckEdgeMissing = "Check the {{.ast_path}}. Could not find the {{.index}}{{.field_name}}."
	MsgCheckFallback    = "Your submission is incorrect. Try again!"
	MsgHasCode          = "Check the {{.ast_path}}. The checker expected to find {{.text}}."
	MsgHasEqualAST      = "Check the {{.ast_path}}. {{.extra}}"
	MsgNotParsed        = "AST did not parse"

	// astPathFallback names the focus when it cannot be described.
	astPathFallback = "highlighted code"
)

// requireAST reports whether a tree check can run on s. With skip set the
// check returns s unchanged: one of the submissions did not parse, so
// there is nothing to compare.
func requireAST(s *sct.State) (skip bool, err error) {
	for _, perr := range []error{s.StudentParseError(), s.SolutionParseError()} {
		if errors.Is(perr, selector.ErrNoParser) {
			return false, sct.NewAuthoringError(s, "Trying to use the AST, but no parser is configured.", perr)
		}
	}
	if s.StudentParseError() != nil || s.SolutionParseError() != nil {
		return true, nil
	}
	if s.StudentAST() == nil || s.SolutionAST() == nil {
		return false, sct.AuthoringErrorf(s, "Trying to use the AST, but it is missing in the current focus.")
	}
	return false, nil
}

func astPath(s *sct.State) string {
	if p, ok := s.AstPath(); ok && p != "" {
		return p
	}
	return astPathFallback
}

// =============================================================================
// Navigation
// =============================================================================

// CheckNode focuses on the index-th node named args["name"].
//
// Description:
//
//	The node is searched in both trees with the dispatcher, below the
//	current focus. A missing solution node is an authoring error; a
//	missing student node fails with args["missing_msg"]. The returned
//	state focuses on both nodes.
//
// Inputs (args):
//
//	name        - Node kind or alias, e.g. "Expr".
//	index       - 0-based position among the matches. Default 0.
//	missing_msg - Failure template. Default MsgCheckNodeMissing.
//	priority    - Search priority; a high value searches every node.
//
// Outputs:
//
//	*sct.State - The focused state, created by "check_node".
//	error      - A student failure or an authoring error.
func CheckNode(s *sct.State, args chain.Args) (*sct.State, error) {
	if skip, err := requireAST(s); err != nil {
		return nil, err
	} else if skip {
		return s, nil
	}
	name, err := args.String("name", "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, sct.AuthoringErrorf(s, "check_node requires name")
	}
	index, err := args.Int("index", 0)
	if err != nil {
		return nil, err
	}
	missing, err := args.String("missing_msg", MsgCheckNodeMissing)
	if err != nil {
		return nil, err
	}
	var opts []selector.FindOption
	if args.Has("priority") {
		p, err := args.Int("priority", 0)
		if err != nil {
			return nil, err
		}
		opts = append(opts, selector.AtPriority(p))
	}

	d := s.Dispatcher()
	solNodes := d.Find(name, s.SolutionAST(), opts...)
	if index < 0 || index >= len(solNodes) {
		return nil, sct.AuthoringErrorf(s, "Can't get %s statement at index %d", name, index)
	}
	sol := solNodes[index]

	stuNodes := d.Find(name, s.StudentAST(), opts...)
	if index >= len(stuNodes) {
		msg, ok := d.Describe(sol, missing, "", index, map[string]any{"ast_path": astPath(s)})
		if !ok {
			msg = MsgCheckFallback
		}
		return nil, s.ReportComponent(feedback.NewComponent(msg, nil))
	}

	child, err := s.ToChild(sct.Params{
		sct.ParamStudentAST:  stuNodes[index],
		sct.ParamSolutionAST: sol,
	})
	if err != nil {
		return nil, err
	}
	return child.WithCreator(NameCheckNode, map[string]any{"name": name, "index": index}, s), nil
}

// CheckEdge focuses on the field args["name"] of the current node.
//
// Description:
//
//	For list fields, args["index"] selects one entry (default 0); an
//	explicit nil index keeps the whole list. A field missing on the
//	student side while present on the solution side fails with
//	args["missing_msg"]; missing on both sides is not a failure. Scalar
//	and list values are wrapped into nodes so later checks can inspect
//	them.
func CheckEdge(s *sct.State, args chain.Args) (*sct.State, error) {
	if skip, err := requireAST(s); err != nil {
		return nil, err
	} else if skip {
		return s, nil
	}
	name, err := args.String("name", "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, sct.AuthoringErrorf(s, "check_edge requires name")
	}
	index := 0
	if v, ok := args["index"]; ok && v == nil {
		index = selector.NoIndex
	} else if index, err = args.Int("index", 0); err != nil {
		return nil, err
	}
	missing, err := args.String("missing_msg", MsgCheckEdgeMissing)
	if err != nil {
		return nil, err
	}

	solVal, _ := s.SolutionAST().Field(name)
	solList, solIsList := solVal.([]tree.Node)
	if !solIsList || index == selector.NoIndex {
		index = selector.NoIndex
	} else {
		if index < 0 || index >= len(solList) {
			return nil, sct.AuthoringErrorf(s, "Can't get %s attribute at index %d", name, index)
		}
		solVal = solList[index]
	}

	d := s.Dispatcher()
	report := func() error {
		msg, ok := d.Describe(s.StudentAST(), missing, name, index, map[string]any{"ast_path": astPath(s)})
		if !ok {
			msg = MsgCheckFallback
		}
		return s.ReportComponent(feedback.NewComponent(msg, nil))
	}

	stuVal, _ := s.StudentAST().Field(name)
	if index != selector.NoIndex {
		stuList, ok := stuVal.([]tree.Node)
		if !ok || index >= len(stuList) {
			return nil, report()
		}
		stuVal = stuList[index]
	}
	if stuVal == nil && solVal != nil {
		return nil, report()
	}

	cat := d.Catalogue()
	child, err := s.ToChild(sct.Params{
		sct.ParamStudentAST:  tree.Wrap(stuVal, cat),
		sct.ParamSolutionAST: tree.Wrap(solVal, cat),
	})
	if err != nil {
		return nil, err
	}
	return child.WithCreator(NameCheckEdge, map[string]any{"name": name, "index": index}, s), nil
}

// =============================================================================
// Code and tree comparison
// =============================================================================

// HasCode checks that the focused student code contains args["text"].
//
// Description:
//
//	text is a regular expression unless args["fixed"] is set. The code
//	searched is the text of the focused student node, or the whole
//	student code when the node has no position or the code did not parse.
func HasCode(s *sct.State, args chain.Args) (*sct.State, error) {
	text, err := args.String("text", "")
	if err != nil {
		return nil, err
	}
	msg, err := args.String("incorrect_msg", MsgHasCode)
	if err != nil {
		return nil, err
	}
	fixed, err := args.Bool("fixed", false)
	if err != nil {
		return nil, err
	}

	code := s.StudentCode()
	if n := s.StudentAST(); n != nil {
		if t, ok := n.Text(code); ok {
			code = t
		}
	}

	var found bool
	if fixed {
		found = strings.Contains(code, text)
	} else {
		re, err := regexp.Compile(text)
		if err != nil {
			return nil, sct.NewAuthoringError(s, fmt.Sprintf("has_code: invalid pattern %q: %v", text, err), err)
		}
		found = re.MatchString(code)
	}
	if found {
		return s, nil
	}
	return nil, s.Report(msg, map[string]any{"ast_path": astPath(s), "text": text})
}

// HasEqualAST compares the focused student tree with the solution.
//
// Description:
//
//	Trees are compared by tree.Repr, which ignores positions. With
//	args["code"] the expected tree is parsed from that code instead of
//	taken from the solution; parse roots with a single child spanning
//	them are unwrapped so "1 + 1" compares as an expression. args["exact"]
//	defaults to true without code (equal trees) and to false with code
//	(the expected tree occurs inside the student tree).
func HasEqualAST(s *sct.State, args chain.Args) (*sct.State, error) {
	if skip, err := requireAST(s); err != nil {
		return nil, err
	} else if skip {
		return s, nil
	}
	msg, err := args.String("incorrect_msg", MsgHasEqualAST)
	if err != nil {
		return nil, err
	}
	code, err := args.String("code", "")
	if err != nil {
		return nil, err
	}
	exact, err := args.Bool("exact", code == "")
	if err != nil {
		return nil, err
	}

	sol := s.SolutionAST()
	solText := code
	if code != "" {
		parsed, err := s.Dispatcher().Parse(code)
		if err != nil {
			return nil, sct.NewAuthoringError(s, fmt.Sprintf("has_equal_ast: code does not parse: %v", err), err)
		}
		sol = unwrapRoot(parsed)
	} else if t, ok := sol.Text(s.SolutionCode()); ok {
		solText = t
	}

	stuRepr, solRepr := tree.Repr(s.StudentAST()), tree.Repr(sol)
	if (exact && stuRepr == solRepr) || (!exact && strings.Contains(stuRepr, solRepr)) {
		return s, nil
	}

	extra := "Something is missing."
	if solText != "" {
		extra = fmt.Sprintf("The checker expected to find `%s` in there.", solText)
	}
	return nil, s.Report(msg, map[string]any{"ast_path": astPath(s), "extra": extra})
}

// unwrapRoot descends from n while it has a single child covering the
// same code.
func unwrapRoot(n tree.Node) tree.Node {
	for {
		children := n.Children()
		if len(children) != 1 {
			return n
		}
		outer, ok1 := n.Position()
		inner, ok2 := children[0].Position()
		if ok1 && ok2 && outer != inner {
			return n
		}
		n = children[0]
	}
}

// HasParsedAST fails when the student or solution code did not parse.
func HasParsedAST(s *sct.State, _ chain.Args) (*sct.State, error) {
	if s.StudentParseError() != nil || s.SolutionParseError() != nil {
		return nil, s.Report(MsgNotParsed, nil)
	}
	return s, nil
}
