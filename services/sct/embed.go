// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sct

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/datacamp/protowhat/services/sct/feedback"
	"github.com/datacamp/protowhat/services/sct/reporter"
	"github.com/datacamp/protowhat/services/sct/selector"
)

// EmbedParams are the host parameters an embedded state inherits by
// default: code, connections, results and highlighting settings. Trees,
// the dispatcher and the feedback context belong to the host technology.
var EmbedParams = []string{
	ParamStudentCode, ParamSolutionCode, ParamPreExerciseCode,
	ParamStudentConn, ParamSolutionConn,
	ParamStudentResult, ParamSolutionResult,
	ParamForceDiagnose, ParamHighlightOffset, ParamHighlightingDisabled,
	ParamPath,
}

// Technology describes a checking technology that can run inside another
// one, e.g. SQL checks on a query string found in Python code.
type Technology struct {
	// Name identifies the technology in creator records and logs.
	Name string

	// Params lists the standard parameters copied from the host state.
	// nil copies EmbedParams.
	Params []string

	// Dispatcher parses and searches the embedded code. nil keeps the
	// host's dispatcher only when Params copies it.
	Dispatcher *selector.Dispatcher

	// ExtraParams lists technology-specific parameters the derive function
	// may set.
	ExtraParams []string

	// New builds the embedded state. nil uses sct.New.
	New func(cfg Config) (*State, error)
}

// Embed builds a state of tech from a host state.
//
// Description:
//
//	The embedded state is built from the host's parameters that tech
//	accepts, overridden by derive(parent). A derived highlight offset is
//	composed with the host's own offset, so nested embeddings highlight
//	in the outermost file. It always gets a child
//	reporter proxying to the host's reporter, so one run keeps one record.
//	Debug mode is not carried over. The embedded state's creator is
//	"embed" with the host as parent, so feedback and history span both
//	technologies.
//
// Inputs:
//
//	parent - The host state.
//	tech   - The embedded technology.
//	derive - Returns parameter overrides, e.g. the code to check and the
//	         highlight offset of that code inside the host file. May be nil.
//
// Outputs:
//
//	*State - The embedded state.
//	error  - An *AuthoringError for unknown or invalid parameters, or the
//	         error returned by tech.New.
func Embed(parent *State, tech Technology, derive func(*State) Params) (*State, error) {
	names := tech.Params
	if names == nil {
		names = EmbedParams
	}

	args := Params{}
	for _, name := range names {
		if !isStandard(name) {
			return nil, AuthoringErrorf(parent, "%s declares unknown parameter %q", tech.Name, name)
		}
		if v, ok := parent.Param(name); ok {
			args[name] = v
		}
	}
	if derive != nil {
		derived := derive(parent)
		for k, v := range derived {
			args[k] = v
		}
		// A derived offset is relative to the host code, which may itself
		// be embedded.
		if v, ok := derived[ParamHighlightOffset]; ok {
			if o, ok := composeOffset(parent.HighlightOffset(), v); ok {
				args[ParamHighlightOffset] = o
			}
		}
	}
	args[ParamReporter] = reporter.NewChild(parent.Reporter())
	if tech.Dispatcher != nil {
		args[ParamDispatcher] = tech.Dispatcher
	}

	cfg := Config{ExtraParams: tech.ExtraParams}
	accepts := func(name string) bool { return slices.Contains(tech.ExtraParams, name) }
	if err := args.apply(&cfg, accepts); err != nil {
		return nil, NewAuthoringError(parent, fmt.Sprintf("embedding %s: %v", tech.Name, err), err)
	}

	build := tech.New
	if build == nil {
		build = New
	}
	st, err := build(cfg)
	if err != nil {
		return nil, err
	}

	slog.Debug("embedded technology",
		slog.String("technology", tech.Name),
		slog.Int("history_depth", len(parent.History())))

	return st.WithCreator(creatorEmbed, map[string]any{"technology": tech.Name}, parent), nil
}

// composeOffset stacks the derived offset v on top of host. It reports
// false when there is nothing to compose or v is not an offset, leaving
// validation to Params.apply.
func composeOffset(host *feedback.Offset, v any) (feedback.Offset, bool) {
	if host == nil {
		return feedback.Offset{}, false
	}
	switch o := v.(type) {
	case feedback.Offset:
		return host.Compose(o), true
	case *feedback.Offset:
		if o == nil {
			return feedback.Offset{}, false
		}
		return host.Compose(*o), true
	}
	return feedback.Offset{}, false
}
