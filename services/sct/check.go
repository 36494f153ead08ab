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

// Check is anything that can run on a state: a single check function, a
// chain of checks, or a combinator over other checks.
//
// Run returns the state the next check should continue from. A nil state
// with a nil error means "unchanged".
type Check interface {
	Run(s *State) (*State, error)
}

// CheckFunc adapts a function to Check.
type CheckFunc func(s *State) (*State, error)

// Run implements Check.
func (f CheckFunc) Run(s *State) (*State, error) {
	return f(s)
}
