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
	"github.com/datacamp/protowhat/services/sct"
	"github.com/datacamp/protowhat/services/sct/chain"
)

// =============================================================================
// Combinators
// =============================================================================

// Multi runs every check in args["checks"] on s, in order.
//
// Description:
//
//	All checks must pass: the first failure stops Multi and is returned.
//	Each check starts from s, so Multi branches out from one focus. Multi
//	returns s itself for further chaining.
//
// Example:
//
//	F().Extend("check_node", chain.Args{"name": "Assign"}).
//	    Extend("multi", chain.Args{"checks": []sct.Check{
//	        F().Extend("check_edge", chain.Args{"name": "target"}),
//	        F().Extend("check_edge", chain.Args{"name": "value"}),
//	    }})
func Multi(s *sct.State, args chain.Args) (*sct.State, error) {
	list, err := args.Checks("checks")
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		if c == nil {
			continue
		}
		if _, err := c.Run(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CheckOr passes when at least one check in args["checks"] passes.
//
// Every candidate starts from s. When all of them fail, the first
// candidate's failure is returned. Authoring errors are never treated as
// a failing candidate.
func CheckOr(s *sct.State, args chain.Args) (*sct.State, error) {
	list, err := args.Checks("checks")
	if err != nil {
		return nil, err
	}
	var first error
	for _, c := range list {
		if c == nil {
			continue
		}
		_, err := c.Run(s)
		if err == nil {
			return s, nil
		}
		if !sct.IsStudentFailure(err) {
			return nil, err
		}
		if first == nil {
			first = err
		}
	}
	if first != nil {
		return nil, first
	}
	return s, nil
}

// CheckNot passes when every check in args["checks"] fails.
//
// Description:
//
//	The first check that passes fails the student with args["msg"]. The
//	checks run under a debugger that accepts authoring errors as failures,
//	so a check that cannot even locate its target counts as not matching.
func CheckNot(s *sct.State, args chain.Args) (*sct.State, error) {
	list, err := args.Checks("checks")
	if err != nil {
		return nil, err
	}
	msg, err := args.String("msg", "")
	if err != nil {
		return nil, err
	}
	if msg == "" {
		return nil, sct.AuthoringErrorf(s, "check_not requires msg")
	}

	inverted := s.WithCreator(NameCheckNot, map[string]any(args), s)
	for _, c := range list {
		if c == nil {
			continue
		}
		err := sct.RunDebugged(inverted, sct.InvertFailure, func(st *sct.State) error {
			_, err := c.Run(st)
			return err
		})
		if err == nil {
			return nil, s.Report(msg, nil)
		}
		if !sct.IsStudentFailure(err) {
			return nil, err
		}
	}
	return s, nil
}

// CheckCorrect runs args["check"] and, when it fails, args["diagnose"].
//
// Description:
//
//	A passing check skips the diagnosis unless the state forces it. When
//	the diagnosis fails after a failing check (or under force), its
//	more specific feedback is returned; otherwise the check's failure is.
//	CheckCorrect returns s on success.
func CheckCorrect(s *sct.State, args chain.Args) (*sct.State, error) {
	check, err := args.Check("check")
	if err != nil {
		return nil, err
	}
	diagnose, err := args.Check("diagnose")
	if err != nil {
		return nil, err
	}
	if check == nil {
		return nil, sct.AuthoringErrorf(s, "check_correct requires check")
	}

	var failure error
	if _, err := check.Run(s); err != nil {
		if !sct.IsStudentFailure(err) {
			return nil, err
		}
		failure = err
	}

	if diagnose != nil && (failure != nil || s.ForceDiagnose()) {
		if _, err := diagnose.Run(s); err != nil {
			if !sct.IsStudentFailure(err) {
				return nil, err
			}
			failure = err
		}
	}

	if failure != nil {
		return nil, failure
	}
	return s, nil
}

// =============================================================================
// State toggles
// =============================================================================

// DisableHighlighting turns highlighting off for the rest of the chain.
func DisableHighlighting(s *sct.State, _ chain.Args) (*sct.State, error) {
	return s.ToChild(sct.Params{sct.ParamHighlightingDisabled: true})
}

// Fail always fails with args["msg"], "fail" by default. Useful while
// writing checks: the failure highlights the current focus.
func Fail(s *sct.State, args chain.Args) (*sct.State, error) {
	msg, err := args.String("msg", "fail")
	if err != nil {
		return nil, err
	}
	return nil, s.Report(msg, nil)
}
