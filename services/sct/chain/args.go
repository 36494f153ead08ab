// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chain

import (
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/datacamp/protowhat/services/sct"
)

// ErrInvalidArg is returned when a check argument has the wrong type.
var ErrInvalidArg = errors.New("invalid check argument")

// Args are the named arguments bound to one check call.
//
// Values come from Go code or from decoded scripts, so the accessors
// accept the numeric types JSON and YAML decoders produce.
type Args map[string]any

// Has reports whether name is set to a non-nil value.
func (a Args) Has(name string) bool {
	return a[name] != nil
}

// Clone returns a shallow copy of a.
func (a Args) Clone() Args {
	return maps.Clone(a)
}

// String returns a string argument, or def when it is absent.
func (a Args) String(name, def string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidArg(name, "a string", v)
	}
	return s, nil
}

// Int returns an integer argument, or def when it is absent.
func (a Args) Int(name string, def int) (int, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, invalidArg(name, "an integer", v)
		}
		return int(n), nil
	}
	return 0, invalidArg(name, "an integer", v)
}

// Bool returns a boolean argument, or def when it is absent.
func (a Args) Bool(name string, def bool) (bool, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidArg(name, "a bool", v)
	}
	return b, nil
}

// Check returns a check argument, or nil when it is absent or a nil chain.
func (a Args) Check(name string) (sct.Check, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return nil, nil
	}
	c, ok := v.(sct.Check)
	if !ok {
		return nil, invalidArg(name, "a check", v)
	}
	if isNilCheck(c) {
		return nil, nil
	}
	return c, nil
}

// Checks returns a list of checks. A single check is accepted as a list
// of one. nil entries, including nil chains, are dropped.
func (a Args) Checks(name string) ([]sct.Check, error) {
	var out []sct.Check
	keep := func(c sct.Check) {
		if !isNilCheck(c) {
			out = append(out, c)
		}
	}
	switch v := a[name].(type) {
	case nil:
		return nil, nil
	case []sct.Check:
		for _, c := range v {
			keep(c)
		}
	case sct.Check:
		keep(v)
	case []*LazyChain:
		for _, c := range v {
			keep(c)
		}
	case []any:
		for i, item := range v {
			if item == nil {
				continue
			}
			c, ok := item.(sct.Check)
			if !ok {
				return nil, invalidArg(fmt.Sprintf("%s[%d]", name, i), "a check", item)
			}
			keep(c)
		}
	default:
		return nil, invalidArg(name, "a list of checks", v)
	}
	return out, nil
}

// isNilCheck reports whether c is nil or wraps a nil chain or function.
func isNilCheck(c sct.Check) bool {
	switch v := c.(type) {
	case nil:
		return true
	case *LazyChain:
		return v == nil
	case *EagerChain:
		return v == nil
	case sct.CheckFunc:
		return v == nil
	}
	return false
}

func invalidArg(name, want string, got any) error {
	return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidArg, name, want, got)
}
