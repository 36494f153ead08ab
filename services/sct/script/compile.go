// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package script

import (
	"fmt"
	"sort"

	"github.com/datacamp/protowhat/services/sct/chain"
	"github.com/datacamp/protowhat/services/sct/checks"
)

// chainArg tells how an argument holding nested steps is compiled.
type chainArg int

const (
	singleChain chainArg = iota + 1
	chainList
)

// chainArgs are the arguments compiled into nested chains.
var chainArgs = map[string]chainArg{
	"checks":   chainList,
	"check":    singleChain,
	"diagnose": singleChain,
}

// Compile turns s into a lazy chain over reg.
//
// Description:
//
//	Steps are resolved against reg at compile time, so a misspelled check
//	fails here with chain.ErrUnknownCheck instead of during grading.
//	success_msg and allow_errors settings become leading steps.
//
// Outputs:
//
//	*chain.LazyChain - The compiled chain.
//	error            - ErrInvalidStep or chain.ErrUnknownCheck, located by
//	                   a path such as "checks[1].check_or.checks[0]".
func Compile(reg *chain.Registry, s *Script) (*chain.LazyChain, error) {
	c := chain.F(reg)
	if s.SuccessMsg != "" {
		c = c.Extend(checks.NameSuccessMsg, chain.Args{"msg": s.SuccessMsg})
	}
	if s.AllowErrors {
		c = c.Extend(checks.NameAllowErrors, nil)
	}
	body, err := compileSteps(reg, s.Checks, "checks")
	if err != nil {
		return nil, err
	}
	return c.Then(body), nil
}

func compileSteps(reg *chain.Registry, steps []any, path string) (*chain.LazyChain, error) {
	c := chain.F(reg)
	for i, step := range steps {
		name, args, err := compileStep(reg, step, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		c = c.Extend(name, args)
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func compileStep(reg *chain.Registry, step any, path string) (string, chain.Args, error) {
	var (
		name string
		raw  map[string]any
	)
	switch v := step.(type) {
	case string:
		name = v
	case map[string]any:
		if len(v) != 1 {
			return "", nil, fmt.Errorf("%w: %s: want a single check name, got %d keys", ErrInvalidStep, path, len(v))
		}
		for k, a := range v {
			name = k
			if a == nil {
				break
			}
			m, ok := a.(map[string]any)
			if !ok {
				return "", nil, fmt.Errorf("%w: %s.%s: arguments must be a map, got %T", ErrInvalidStep, path, k, a)
			}
			raw = m
		}
	default:
		return "", nil, fmt.Errorf("%w: %s: want a check name or map, got %T", ErrInvalidStep, path, step)
	}
	if _, ok := reg.Lookup(name); !ok {
		return "", nil, fmt.Errorf("%w: %s: %q", chain.ErrUnknownCheck, path, name)
	}

	args := make(chain.Args, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := raw[k]
		argPath := fmt.Sprintf("%s.%s.%s", path, name, k)
		switch chainArgs[k] {
		case singleChain:
			sub, err := compileChain(reg, v, argPath)
			if err != nil {
				return "", nil, err
			}
			args[k] = sub
		case chainList:
			items, ok := asList(v)
			if !ok {
				return "", nil, fmt.Errorf("%w: %s: want a list of chains, got %T", ErrInvalidStep, argPath, v)
			}
			subs := make([]*chain.LazyChain, 0, len(items))
			for i, item := range items {
				sub, err := compileChain(reg, item, fmt.Sprintf("%s[%d]", argPath, i))
				if err != nil {
					return "", nil, err
				}
				subs = append(subs, sub)
			}
			args[k] = subs
		default:
			args[k] = v
		}
	}
	return name, args, nil
}

// compileChain compiles a single step or a list of steps.
func compileChain(reg *chain.Registry, v any, path string) (*chain.LazyChain, error) {
	if items, ok := asList(v); ok {
		return compileSteps(reg, items, path)
	}
	return compileSteps(reg, []any{v}, path)
}

// asList normalizes the list shapes the decoders produce. TOML arrays of
// tables decode as []map[string]any.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}
