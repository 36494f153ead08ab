// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package script loads declarative check scripts and compiles them into
// lazy chains.
//
// A script lists the steps of one chain. Each step is a single-key map
// from a check name to its arguments, or a bare check name:
//
//	technology: python
//	success_msg: Well done!
//	checks:
//	  - check_node: {name: Expr, index: 0}
//	  - check_or:
//	      checks:
//	        - has_equal_ast: {}
//	        - - has_code: {text: "1 \\+ 1"}
//	          - has_parsed_ast
//
// The arguments "checks", "check" and "diagnose" hold nested chains: a
// single step or a list of steps per chain, and for "checks" a list of
// such chains.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is a script encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var (
	// ErrUnknownFormat is returned for files without a known extension.
	ErrUnknownFormat = errors.New("unknown script format")

	// ErrInvalidScript is returned for scripts failing validation.
	ErrInvalidScript = errors.New("invalid script")

	// ErrInvalidStep is returned for malformed steps.
	ErrInvalidStep = errors.New("invalid step")
)

var validate = validator.New()

// Script is one check script.
type Script struct {
	// Name identifies the script in logs and results.
	Name string `yaml:"name" toml:"name"`

	// Technology is the grammar of the graded code, e.g. "python".
	Technology string `yaml:"technology" toml:"technology" validate:"required"`

	// SuccessMsg replaces the default success message.
	SuccessMsg string `yaml:"success_msg" toml:"success_msg"`

	// AllowErrors lets submissions pass despite execution errors.
	AllowErrors bool `yaml:"allow_errors" toml:"allow_errors"`

	// Checks are the steps of the chain.
	Checks []any `yaml:"checks" toml:"checks" validate:"required,min=1"`
}

// Validate checks the structural constraints of s.
func (s *Script) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	return nil
}

// FormatOf returns the format of path by its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Parse decodes and validates a script.
func Parse(data []byte, format Format) (*Script, error) {
	var s Script
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("%w: yaml: %w", ErrInvalidScript, err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &s); err != nil {
			return nil, fmt.Errorf("%w: toml: %w", ErrInvalidScript, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	s, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}
