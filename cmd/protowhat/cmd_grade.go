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
	"github.com/spf13/cobra"

	"github.com/datacamp/protowhat/services/sct/grade"
)

func newGradeCmd(a *app) *cobra.Command {
	var (
		errored       bool
		forceDiagnose bool
	)
	cmd := &cobra.Command{
		Use:   "grade STUDENT_FILE",
		Short: "Grade one submission",
		Example: `  protowhat grade --script sct.yaml --solution solution.py submission.py
  protowhat grade -s sct.toml --solution sol.sql -o json query.sql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.newSession()
			if err != nil {
				return err
			}
			sub, err := sess.submission(args[0])
			if err != nil {
				return err
			}
			sub.Errors = errored
			sub.ForceDiagnose = forceDiagnose

			res, err := sess.grader.Grade(cmd.Context(), sess.chain, sub)
			if err != nil {
				return err
			}
			results := []*grade.Result{res}
			if err := a.printResults(results, false); err != nil {
				return err
			}
			return outcomeErr(results)
		},
	}
	cmd.Flags().BoolVar(&errored, "errors", false, "running the student code raised errors")
	cmd.Flags().BoolVar(&forceDiagnose, "force-diagnose", false, "always run the diagnosis of check_correct")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "batch STUDENT_FILE...",
		Short: "Grade many submissions concurrently",
		Long: `Grade every given submission against the same script and solution.

Submissions are graded concurrently, bounded by --concurrency. The exit
status is 1 when any submission is incorrect.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.newSession()
			if err != nil {
				return err
			}
			subs := make([]grade.Submission, 0, len(args))
			for _, path := range args {
				sub, err := sess.submission(path)
				if err != nil {
					return err
				}
				subs = append(subs, sub)
			}

			results, err := sess.grader.GradeAll(cmd.Context(), sess.chain, subs, a.cfg.Concurrency)
			if err != nil {
				return err
			}
			if err := a.printResults(results, true); err != nil {
				return err
			}
			return outcomeErr(results)
		},
	}
}
