// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datacamp/protowhat/pkg/ux"
	"github.com/datacamp/protowhat/services/sct/grade"
	"github.com/datacamp/protowhat/services/sct/metrics"
)

// printResults writes results in the configured output format.
func (a *app) printResults(results []*grade.Result, summary bool) error {
	if a.cfg.Output == "json" {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if len(results) == 1 && !summary {
			return enc.Encode(results[0])
		}
		return enc.Encode(results)
	}

	var correct, incorrect, errored int
	for _, res := range results {
		a.printer.Verdict(verdictOf(res))
		switch res.Outcome {
		case metrics.OutcomeCorrect:
			correct++
		case metrics.OutcomeIncorrect:
			incorrect++
		default:
			errored++
		}
	}
	if summary {
		a.printer.Summary(correct, incorrect, errored)
	}
	return nil
}

// outcomeErr is the error a command ends with for results.
func outcomeErr(results []*grade.Result) error {
	var incorrect bool
	for _, res := range results {
		switch res.Outcome {
		case metrics.OutcomeError:
			return fmt.Errorf("%w: %s", errCheckFailed, res.Error)
		case metrics.OutcomeIncorrect:
			incorrect = true
		}
	}
	if incorrect {
		return errIncorrect
	}
	return nil
}

func verdictOf(res *grade.Result) ux.Verdict {
	v := ux.Verdict{Title: res.SubmissionID}
	switch res.Outcome {
	case metrics.OutcomeCorrect:
		v.Status = ux.StatusCorrect
	case metrics.OutcomeIncorrect:
		v.Status = ux.StatusIncorrect
	default:
		v.Status = ux.StatusError
		v.Message = res.Error
		v.Detail = strings.TrimPrefix(strings.TrimPrefix(res.Diagnostic, res.Error), "\n")
		return v
	}
	if p := res.Payload; p != nil {
		v.Message = p.Message
		if h := p.Highlight; h != nil {
			v.Location = fmt.Sprintf("%d:%d-%d:%d", h.LineStart, h.ColumnStart, h.LineEnd, h.ColumnEnd)
		}
	}
	return v
}
