// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chain composes checks into chains.
//
// A LazyChain is a reusable template of calls that runs when given a
// state. An EagerChain is bound to a state and evaluates every call as
// soon as it is added. Then appends one chain onto another, the way
// Ex().check_node("Expr") >> F().has_code("1") reads in the checks DSL.
package chain

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/datacamp/protowhat/services/sct"
)

// ErrEagerOnRight is returned when an eager chain is appended with Then.
// Only stateless chains can be appended.
var ErrEagerOnRight = errors.New("an eager chain cannot be appended to another chain; start it with F() instead of Ex()")

// =============================================================================
// Call
// =============================================================================

// Call is one check with its bound arguments.
type Call struct {
	Name string
	Args Args
	fn   Func
}

// NewCall binds args to fn under name without a registry.
func NewCall(name string, fn Func, args Args) Call {
	return Call{Name: name, Args: args, fn: fn}
}

// Run applies the call to in.
//
// Description:
//
//	A returned state that is a new child of in is stamped with the call
//	as its creator, so history and feedback can name the check. Student
//	failures are returned unchanged. Any other error becomes an
//	*sct.AuthoringError located at the call.
//
// Outputs:
//
//	*sct.State - The state the chain continues from, never nil on success.
//	error      - A *sct.StudentFailure or *sct.AuthoringError.
func (c Call) Run(in *sct.State) (*sct.State, error) {
	slog.Debug("running check", slog.String("check", c.Name))

	out, err := c.fn(in, c.Args)
	if err != nil {
		return nil, c.locate(in, err)
	}
	if out == nil || out == in {
		return in, nil
	}
	if cr := out.Creator(); cr != nil && cr.Type == c.Name {
		return out, nil
	}
	if out.Parent() != in {
		return out, nil
	}
	return out.WithCreator(c.Name, c.Args, in), nil
}

func (c Call) locate(in *sct.State, err error) error {
	if sct.IsStudentFailure(err) {
		return err
	}
	at := in.WithCreator(c.Name, c.Args, in)
	var ae *sct.AuthoringError
	if errors.As(err, &ae) {
		return ae.Located(at)
	}
	return sct.NewAuthoringError(at, fmt.Sprintf("%s: %v", c.Name, err), err)
}

// String renders the call as name(arg=value, ...), arguments sorted.
func (c Call) String() string {
	keys := make([]string, 0, len(c.Args))
	for k := range c.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatArg(c.Args[k])))
	}
	return c.Name + "(" + strings.Join(parts, ", ") + ")"
}

func formatArg(v any) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case fmt.Stringer:
		return x.String()
	case []sct.Check:
		parts := make([]string, len(x))
		for i, c := range x {
			parts[i] = formatArg(c)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}

// callOf turns a check into a call. Chains contribute their calls.
func callOf(c sct.Check) Call {
	if call, ok := c.(Call); ok {
		return call
	}
	name := "check"
	if s, ok := c.(fmt.Stringer); ok {
		name = s.String()
	}
	return Call{Name: name, fn: func(s *sct.State, _ Args) (*sct.State, error) { return c.Run(s) }}
}

// =============================================================================
// LazyChain
// =============================================================================

// LazyChain is an immutable sequence of calls.
//
// Description:
//
//	Extend and Then return new chains and never modify the receiver, so a
//	chain can be shared as a template. Building errors (an unknown check
//	name, an eager chain on the right) are sticky: they are kept on the
//	chain and returned by Err and Run.
//
// Thread Safety:
//
//	A LazyChain is immutable and safe to share. Running it is as safe as
//	the checks it calls.
//
// Example:
//
//	c := chain.F(reg).
//	    Extend("check_node", chain.Args{"name": "Expr", "index": 0}).
//	    Extend("has_equal_ast", nil)
//	_, err := c.Run(state)
type LazyChain struct {
	reg   *Registry
	calls []Call
	err   error
}

// F starts an empty lazy chain resolving names in reg.
func F(reg *Registry) *LazyChain {
	return &LazyChain{reg: reg}
}

// Extend returns a chain with the check name appended.
func (c *LazyChain) Extend(name string, args Args) *LazyChain {
	next := c.clone()
	if next.err != nil {
		return next
	}
	call, err := resolve(c.reg, name, args)
	if err != nil {
		next.err = err
		return next
	}
	next.calls = append(next.calls, call)
	return next
}

// Then returns a chain running c and then other.
//
// other may be a *LazyChain, a Call, or any sct.Check. An *EagerChain is
// rejected with ErrEagerOnRight.
func (c *LazyChain) Then(other sct.Check) *LazyChain {
	next := c.clone()
	if next.err != nil {
		return next
	}
	calls, err := thenCalls(other)
	if err != nil {
		next.err = err
		return next
	}
	next.calls = append(next.calls, calls...)
	return next
}

// Run folds the calls over s from left to right. It stops at the first
// error.
func (c *LazyChain) Run(s *sct.State) (*sct.State, error) {
	if c.err != nil {
		return nil, sct.NewAuthoringError(s, c.err.Error(), c.err)
	}
	return runCalls(c.calls, s)
}

// Calls returns a copy of the chain's calls.
func (c *LazyChain) Calls() []Call {
	return slices.Clone(c.calls)
}

// Err returns the building error, if any.
func (c *LazyChain) Err() error {
	return c.err
}

// String renders the chain as call().call().
func (c *LazyChain) String() string {
	return joinCalls(c.calls)
}

func (c *LazyChain) clone() *LazyChain {
	return &LazyChain{reg: c.reg, calls: slices.Clone(c.calls), err: c.err}
}

// =============================================================================
// EagerChain
// =============================================================================

// EagerChain is a chain bound to a state. Every call runs as soon as it
// is added, and the resulting state becomes the input of the next call.
//
// After the first error further calls are recorded but not run; Err
// returns that error.
type EagerChain struct {
	reg   *Registry
	start *sct.State
	state *sct.State
	calls []Call
	err   error
}

// Ex starts an eager chain on s.
func Ex(reg *Registry, s *sct.State) *EagerChain {
	return &EagerChain{reg: reg, start: s, state: s}
}

// Extend runs the check name on the chain's state.
func (c *EagerChain) Extend(name string, args Args) *EagerChain {
	next := c.clone()
	call, err := resolve(c.reg, name, args)
	if err != nil {
		if next.err == nil {
			next.err = sct.NewAuthoringError(next.state, err.Error(), err)
		}
		return next
	}
	next.apply(call)
	return next
}

// Then runs other on the chain's state. An *EagerChain is rejected with
// ErrEagerOnRight.
func (c *EagerChain) Then(other sct.Check) *EagerChain {
	next := c.clone()
	calls, err := thenCalls(other)
	if err != nil {
		if next.err == nil {
			next.err = sct.NewAuthoringError(next.state, err.Error(), err)
		}
		return next
	}
	for _, call := range calls {
		next.apply(call)
	}
	return next
}

// State returns the state after the last successful call.
func (c *EagerChain) State() *sct.State {
	return c.state
}

// Err returns the first failure or authoring error of the chain.
func (c *EagerChain) Err() error {
	return c.err
}

// Run replays the chain's calls on another state.
func (c *EagerChain) Run(s *sct.State) (*sct.State, error) {
	return runCalls(c.calls, s)
}

// String renders the chain's calls as call().call().
func (c *EagerChain) String() string {
	return joinCalls(c.calls)
}

func (c *EagerChain) apply(call Call) {
	c.calls = append(c.calls, call)
	if c.err != nil {
		return
	}
	out, err := call.Run(c.state)
	if err != nil {
		c.err = err
		return
	}
	c.state = out
}

func (c *EagerChain) clone() *EagerChain {
	next := *c
	next.calls = slices.Clone(c.calls)
	return &next
}

// =============================================================================
// Helpers
// =============================================================================

func resolve(reg *Registry, name string, args Args) (Call, error) {
	if reg == nil {
		return Call{}, fmt.Errorf("%w: %s (no registry)", ErrUnknownCheck, name)
	}
	fn, ok := reg.Lookup(name)
	if !ok {
		return Call{}, fmt.Errorf("%w: %s", ErrUnknownCheck, name)
	}
	return Call{Name: name, Args: args, fn: fn}, nil
}

func thenCalls(other sct.Check) ([]Call, error) {
	switch o := other.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil check", ErrInvalidArg)
	case *EagerChain:
		return nil, ErrEagerOnRight
	case *LazyChain:
		if o == nil {
			return nil, fmt.Errorf("%w: nil chain", ErrInvalidArg)
		}
		if o.err != nil {
			return nil, o.err
		}
		return slices.Clone(o.calls), nil
	}
	if isNilCheck(other) {
		return nil, fmt.Errorf("%w: nil check", ErrInvalidArg)
	}
	return []Call{callOf(other)}, nil
}

func runCalls(calls []Call, s *sct.State) (*sct.State, error) {
	cur := s
	for _, call := range calls {
		next, err := call.Run(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func joinCalls(calls []Call) string {
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.String()
	}
	return strings.Join(parts, ".")
}
