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
	"reflect"
	"slices"
	"sync"

	"github.com/datacamp/protowhat/services/sct"
)

var (
	// ErrUnknownCheck is returned when a chain names an unregistered check.
	ErrUnknownCheck = errors.New("unknown check")

	// ErrDuplicateCheck is returned when a different function is
	// registered under a taken name.
	ErrDuplicateCheck = errors.New("check already registered")

	// ErrNilCheck is returned when registering a nil function.
	ErrNilCheck = errors.New("nil check function")
)

// Func is a check function. It returns the state the chain continues
// from; returning s itself (or nil) leaves the focus unchanged.
type Func func(s *sct.State, args Args) (*sct.State, error)

// Registry maps check names to functions.
//
// Description:
//
//	Registration is append-only. Registering the same function under the
//	same name again is a no-op, so packages can register their checks
//	from several entry points without coordination.
//
// Thread Safety:
//
//	Registry is safe for concurrent use. Registration takes a write lock,
//	lookups take a read lock.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn under name.
//
// Inputs:
//
//	name - The name chains use to call fn.
//	fn   - The check function. Must not be nil.
//
// Outputs:
//
//	error - ErrNilCheck, or ErrDuplicateCheck when name is taken by a
//	        different function.
func (r *Registry) Register(name string, fn Func) error {
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrNilCheck, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.funcs[name]; ok {
		if sameFunc(existing, fn) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateCheck, name)
	}
	r.funcs[name] = fn
	return nil
}

// MustRegister is Register that panics on error. For package init code.
func (r *Registry) MustRegister(name string, fn Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func sameFunc(a, b Func) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
