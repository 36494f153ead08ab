// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checks is the library of checks shared by every technology:
// combinators, tree navigation, code matching and run settings.
//
// Checks are chain.Func values registered under the names used in check
// chains and scripts. Combinators take nested checks (usually lazy
// chains) as arguments.
package checks

import (
	"sync"

	"github.com/datacamp/protowhat/services/sct/chain"
)

// Check names.
const (
	NameMulti               = "multi"
	NameCheckOr             = "check_or"
	NameCheckNot            = "check_not"
	NameCheckCorrect        = "check_correct"
	NameDisableHighlighting = "disable_highlighting"
	NameFail                = "fail"
	NameCheckNode           = "check_node"
	NameCheckEdge           = "check_edge"
	NameHasCode             = "has_code"
	NameHasEqualAST         = "has_equal_ast"
	NameHasParsedAST        = "has_parsed_ast"
	NameAllowErrors         = "allow_errors"
	NameSuccessMsg          = "success_msg"
	NameDebug               = "_debug"
)

// Funcs returns every check of the package by name.
func Funcs() map[string]chain.Func {
	return map[string]chain.Func{
		NameMulti:               Multi,
		NameCheckOr:             CheckOr,
		NameCheckNot:            CheckNot,
		NameCheckCorrect:        CheckCorrect,
		NameDisableHighlighting: DisableHighlighting,
		NameFail:                Fail,
		NameCheckNode:           CheckNode,
		NameCheckEdge:           CheckEdge,
		NameHasCode:             HasCode,
		NameHasEqualAST:         HasEqualAST,
		NameHasParsedAST:        HasParsedAST,
		NameAllowErrors:         AllowErrors,
		NameSuccessMsg:          SuccessMsg,
		NameDebug:               Debug,
	}
}

// Register adds every check of the package to reg. Registering twice is
// a no-op.
func Register(reg *chain.Registry) error {
	for name, fn := range Funcs() {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

var (
	defaultOnce sync.Once
	defaultReg  *chain.Registry
)

// Default returns the process-wide registry holding the checks of this
// package. Technologies add their own checks to it.
func Default() *chain.Registry {
	defaultOnce.Do(func() {
		defaultReg = chain.NewRegistry()
		for name, fn := range Funcs() {
			defaultReg.MustRegister(name, fn)
		}
	})
	return defaultReg
}
