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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/datacamp/protowhat/services/sct/grade"
)

// defaultDebounce collapses the burst of events an editor save produces.
const defaultDebounce = 150 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch STUDENT_FILE",
		Short: "Regrade a submission every time it or the script changes",
		Long: `Grade the submission, then watch it, the check script and the solution
and grade again on every change. The script is reloaded on each run so
edits to the checks take effect immediately. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			student := args[0]
			targets := []string{student}
			for _, p := range []string{a.cfg.Script, a.cfg.Solution, a.cfg.PreExercise} {
				if p != "" {
					targets = append(targets, p)
				}
			}

			w, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}
			defer w.Close()

			// Editors replace files on save, so watch the directories.
			dirs := make(map[string]bool)
			for _, t := range targets {
				dir := filepath.Dir(t)
				if dirs[dir] {
					continue
				}
				if err := w.Add(dir); err != nil {
					return fmt.Errorf("watching %s: %w", dir, err)
				}
				dirs[dir] = true
			}

			regrade := func() {
				if err := a.gradeOnce(cmd.Context(), student); err != nil &&
					!errors.Is(err, errIncorrect) {
					a.printer.Info("error: " + err.Error())
				}
			}
			regrade()
			return watchLoop(cmd.Context(), w.Events, w.Errors, targets, debounce, regrade)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "quiet period before regrading")
	return cmd
}

// gradeOnce loads a fresh session and grades the student file.
func (a *app) gradeOnce(ctx context.Context, student string) error {
	sess, err := a.newSession()
	if err != nil {
		return err
	}
	sub, err := sess.submission(student)
	if err != nil {
		return err
	}
	res, err := sess.grader.Grade(ctx, sess.chain, sub)
	if err != nil {
		return err
	}
	results := []*grade.Result{res}
	if err := a.printResults(results, false); err != nil {
		return err
	}
	return outcomeErr(results)
}

// watchLoop calls regrade once events on targets have been quiet for
// debounce. It returns nil when ctx is done or the event channel closes.
func watchLoop(
	ctx context.Context,
	events <-chan fsnotify.Event,
	errs <-chan error,
	targets []string,
	debounce time.Duration,
	regrade func(),
) error {
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !relevant(ev, targets) {
				continue
			}
			slog.Debug("file changed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(debounce)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		case <-timer.C:
			regrade()
		}
	}
}

// relevant reports whether ev changes the content of one of targets.
func relevant(ev fsnotify.Event, targets []string) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	for _, t := range targets {
		if filepath.Clean(t) == name {
			return true
		}
	}
	return false
}
