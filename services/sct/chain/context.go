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

	"github.com/datacamp/protowhat/services/sct"
)

// ErrNoRootState is returned by Context.Ex when no state is available.
var ErrNoRootState = errors.New("no root state: pass a state to Ex or set Context.Root")

// Context is what check code of one technology runs against: the checks
// it can call and the state Ex() starts from.
type Context struct {
	Registry *Registry
	Root     *sct.State
}

// Ex starts an eager chain on the root state.
func (c Context) Ex() *EagerChain {
	return c.ExOn(c.Root)
}

// ExOn starts an eager chain on s.
func (c Context) ExOn(s *sct.State) *EagerChain {
	ex := Ex(c.Registry, s)
	if s == nil {
		ex.err = sct.NewAuthoringError(nil, ErrNoRootState.Error(), ErrNoRootState)
	}
	return ex
}

// F starts a lazy chain.
func (c Context) F() *LazyChain {
	return F(c.Registry)
}

// NewEmbedContext creates the context for checking code of tech embedded
// in the host state, e.g. a SQL query inside a Python submission.
//
// Description:
//
//	The embedded root state is built with sct.Embed, so its reporter
//	records on the host's reporter and its history continues the host's.
//	Checks are resolved in reg, the embedded technology's registry.
//
// Inputs:
//
//	tech   - The embedded technology.
//	reg    - The embedded technology's checks.
//	host   - The host state, usually the state of an eager host chain.
//	derive - Returns overrides for the embedded state. May be nil.
//
// Outputs:
//
//	Context - The embedded context.
//	error   - An *sct.AuthoringError when the embedded state cannot be built.
func NewEmbedContext(tech sct.Technology, reg *Registry, host *sct.State, derive func(*sct.State) sct.Params) (Context, error) {
	if host == nil {
		return Context{}, sct.NewAuthoringError(nil, ErrNoRootState.Error(), ErrNoRootState)
	}
	st, err := sct.Embed(host, tech, derive)
	if err != nil {
		return Context{}, err
	}
	return Context{Registry: reg, Root: st}, nil
}
