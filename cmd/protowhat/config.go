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

// defaultConfigNames are looked up in the working directory when no
// --config is given.
var defaultConfigNames = []string{"protowhat.yaml", "protowhat.yml", "protowhat.toml"}

var errInvalidConfig = errors.New("invalid config")

var configValidate = validator.New()

// Config is the CLI configuration file.
//
// Every field can be overridden by the flag of the same name.
type Config struct {
	// Script is the check script to run.
	Script string `yaml:"script" toml:"script"`

	// Solution is the reference solution file.
	Solution string `yaml:"solution" toml:"solution"`

	// PreExercise is code run before the student code.
	PreExercise string `yaml:"pre_exercise" toml:"pre_exercise"`

	// Technology overrides the grammar named by the script.
	Technology string `yaml:"technology" toml:"technology"`

	// MaxFileSize caps the size of parsed files, in bytes. 0 uses the
	// parser default.
	MaxFileSize int64 `yaml:"max_file_size" toml:"max_file_size" validate:"gte=0"`

	// UnsafeParsing makes a syntax error fail the submission immediately.
	UnsafeParsing bool `yaml:"unsafe_parsing" toml:"unsafe_parsing"`

	// Concurrency bounds parallel grading in batch mode. 0 means the
	// number of submissions.
	Concurrency int `yaml:"concurrency" toml:"concurrency" validate:"gte=0,lte=1024"`

	// Output is "auto", "pretty", "plain" or "json".
	Output string `yaml:"output" toml:"output" validate:"omitempty,oneof=auto pretty plain json"`

	// Trace prints grading spans to stderr.
	Trace bool `yaml:"trace" toml:"trace"`

	// MetricsFile receives Prometheus metrics in text format on exit.
	MetricsFile string `yaml:"metrics_file" toml:"metrics_file"`

	Log LogConfig `yaml:"log" toml:"log"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir" toml:"dir"`
	JSON  bool   `yaml:"json" toml:"json"`
}

// defaultConfig returns the configuration used without a config file.
func defaultConfig() Config {
	return Config{Output: "auto", Log: LogConfig{Level: "warn"}}
}

// loadConfig reads the config at path. With an empty path the default
// names are tried in the working directory; none existing is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		for _, name := range defaultConfigNames {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %w", errInvalidConfig, path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %w", errInvalidConfig, path, err)
		}
	default:
		return cfg, fmt.Errorf("%w: %s: unsupported extension", errInvalidConfig, path)
	}

	// Relative paths in the file are relative to the file.
	base := filepath.Dir(path)
	for _, p := range []*string{&cfg.Script, &cfg.Solution, &cfg.PreExercise, &cfg.MetricsFile, &cfg.Log.Dir} {
		if *p != "" && !filepath.IsAbs(*p) && !strings.HasPrefix(*p, "~") {
			*p = filepath.Join(base, *p)
		}
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", errInvalidConfig, err)
	}
	return nil
}
