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

// AllowErrors lets the run pass even though executing the student code
// raised errors.
func AllowErrors(s *sct.State, _ chain.Args) (*sct.State, error) {
	s.Reporter().AllowErrors()
	return s, nil
}

// SuccessMsg sets the message shown when the submission passes.
func SuccessMsg(s *sct.State, args chain.Args) (*sct.State, error) {
	msg, err := args.String("msg", "")
	if err != nil {
		return nil, err
	}
	if msg == "" {
		return nil, sct.AuthoringErrorf(s, "success_msg requires msg")
	}
	s.Reporter().SetSuccessMessage(msg)
	return s, nil
}

// Debug interrupts the chain with the check history and the last test.
//
// With args["on_error"] nothing is interrupted yet: debug mode is switched
// on for the rest of the chain and the run can no longer pass. Otherwise
// the chain stops here, as an authoring error unless args["force"] is
// false.
func Debug(s *sct.State, args chain.Args) (*sct.State, error) {
	msg, err := args.String("msg", "")
	if err != nil {
		return nil, err
	}
	onError, err := args.Bool("on_error", false)
	if err != nil {
		return nil, err
	}
	force, err := args.Bool("force", true)
	if err != nil {
		return nil, err
	}
	if onError {
		return sct.DebugOnError(s), nil
	}
	return nil, sct.Debug(s, msg, force)
}
