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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datacamp/protowhat/services/sct/lang/treesitter"
	"github.com/datacamp/protowhat/services/sct/tree"
)

var errNoLanguage = errors.New("no language: use --language or --technology")

func newDumpCmd(a *app) *cobra.Command {
	var (
		language string
		format   string
		repr     bool
	)
	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the syntax tree checks see for a file",
		Example: `  protowhat dump -l python submission.py
  protowhat dump -l sql --format yaml query.sql
  protowhat dump -l python --repr submission.py`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if language == "" {
				language = a.cfg.Technology
			}
			if language == "" {
				return errNoLanguage
			}
			g, err := treesitter.Lookup(language)
			if err != nil {
				return err
			}
			code, err := readCode(args[0])
			if err != nil {
				return err
			}

			var opts []treesitter.Option
			if a.cfg.MaxFileSize > 0 {
				opts = append(opts, treesitter.WithMaxFileSize(a.cfg.MaxFileSize))
			}
			root, err := treesitter.NewParser(g, opts...).ParseContext(cmd.Context(), code)
			if err != nil {
				return err
			}

			if repr {
				_, err := fmt.Fprintln(a.out, tree.Repr(root))
				return err
			}
			f, err := tree.ParseFormat(format)
			if err != nil {
				return err
			}
			data, err := tree.Dump(root, f)
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "grammar to parse with")
	cmd.Flags().StringVar(&format, "format", string(tree.FormatJSON), "json, yaml or msgpack")
	cmd.Flags().BoolVar(&repr, "repr", false, "print the position-free representation instead")
	return cmd
}

func newChecksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checks",
		Short: "List the checks scripts can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range a.registry.Names() {
				if _, err := fmt.Fprintln(a.out, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
