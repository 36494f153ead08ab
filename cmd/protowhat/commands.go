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
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/datacamp/protowhat/pkg/logging"
	"github.com/datacamp/protowhat/pkg/ux"
	"github.com/datacamp/protowhat/services/sct/chain"
	"github.com/datacamp/protowhat/services/sct/checks"
	"github.com/datacamp/protowhat/services/sct/grade"
	"github.com/datacamp/protowhat/services/sct/lang/treesitter"
	"github.com/datacamp/protowhat/services/sct/metrics"
	"github.com/datacamp/protowhat/services/sct/reporter"
	"github.com/datacamp/protowhat/services/sct/script"
	"github.com/datacamp/protowhat/services/sct/selector"
)

// Exit codes.
const (
	exitCorrect   = 0
	exitIncorrect = 1
	exitError     = 2
)

var (
	// errIncorrect ends a run whose submission did not pass.
	errIncorrect = errors.New("submission is not correct")

	// errCheckFailed ends a run whose checks could not be run.
	errCheckFailed = errors.New("checks failed to run")

	errNoScript = errors.New("no check script: use --script or set script in the config")
)

// exitCode maps the error a command ended with to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitCorrect
	case errors.Is(err, errIncorrect):
		return exitIncorrect
	default:
		return exitError
	}
}

// app holds what the commands share: configuration, logging, tracing,
// metrics and output.
type app struct {
	configPath string
	cfg        Config

	// flag values; applied over cfg when set
	flagScript      string
	flagSolution    string
	flagPreExercise string
	flagTechnology  string
	flagOutput      string
	flagLogLevel    string
	flagLogDir      string
	flagTrace       bool
	flagMetricsFile string
	flagConcurrency int

	out     io.Writer
	errOut  io.Writer
	printer *ux.Printer
	logger  *logging.Logger

	tracerProvider *sdktrace.TracerProvider
	promRegistry   *prometheus.Registry
	collector      *metrics.Collector
	registry       *chain.Registry
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, registry: checks.Default()}
}

// newRootCmd builds the command tree of a.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "protowhat",
		Short: "Grade code submissions with submission correctness tests",
		Long: `protowhat checks student code against a reference solution.

Check scripts (YAML or TOML) list the checks to run; the verdict is printed
with feedback for the student and the highlighted code range.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default protowhat.yaml or protowhat.toml if present)")
	pf.StringVarP(&a.flagScript, "script", "s", "", "check script (.yaml, .yml or .toml)")
	pf.StringVar(&a.flagSolution, "solution", "", "reference solution file")
	pf.StringVar(&a.flagPreExercise, "pre-exercise", "", "pre-exercise code file")
	pf.StringVarP(&a.flagTechnology, "technology", "t", "", "grammar, overriding the script's ("+fmt.Sprint(treesitter.Names())+")")
	pf.StringVarP(&a.flagOutput, "output", "o", "", "output format: auto, pretty, plain or json")
	pf.StringVar(&a.flagLogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.flagLogDir, "log-dir", "", "directory of the JSON log file")
	pf.BoolVar(&a.flagTrace, "trace", false, "print grading spans to stderr")
	pf.StringVar(&a.flagMetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.IntVar(&a.flagConcurrency, "concurrency", 0, "parallel gradings in batch mode (0: all)")

	root.AddCommand(
		newGradeCmd(a),
		newBatchCmd(a),
		newWatchCmd(a),
		newDumpCmd(a),
		newChecksCmd(a),
	)
	return root
}

// setup loads the configuration and starts logging, tracing and metrics.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("script", &cfg.Script, a.flagScript)
	override("solution", &cfg.Solution, a.flagSolution)
	override("pre-exercise", &cfg.PreExercise, a.flagPreExercise)
	override("technology", &cfg.Technology, a.flagTechnology)
	override("output", &cfg.Output, a.flagOutput)
	override("log-level", &cfg.Log.Level, a.flagLogLevel)
	override("log-dir", &cfg.Log.Dir, a.flagLogDir)
	override("metrics-file", &cfg.MetricsFile, a.flagMetricsFile)
	if flags.Changed("trace") {
		cfg.Trace = a.flagTrace
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = a.flagConcurrency
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger, err = logging.New(logging.Config{
		Level:  level,
		LogDir: cfg.Log.Dir,
		JSON:   cfg.Log.JSON,
		Output: a.errOut,
	})
	if err != nil {
		return err
	}
	a.logger.Install()

	a.printer = ux.NewPrinter(a.out, a.outputMode())

	var tpOpts []sdktrace.TracerProviderOption
	if cfg.Trace {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(a.errOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("starting trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithSyncer(exp))
	}
	a.tracerProvider = sdktrace.NewTracerProvider(tpOpts...)

	a.promRegistry = prometheus.NewRegistry()
	mcfg := metrics.DefaultConfig()
	mcfg.Registry = a.promRegistry
	a.collector, err = metrics.NewCollector(mcfg)
	return err
}

// teardown flushes spans and metrics and closes the log file. It runs
// after every command, including failed ones.
func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.tracerProvider != nil {
		errs = append(errs, a.tracerProvider.Shutdown(ctx))
	}
	if a.cfg.MetricsFile != "" && a.promRegistry != nil {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, a.promRegistry); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

func (a *app) outputMode() ux.Mode {
	switch a.cfg.Output {
	case "pretty":
		return ux.ModePretty
	case "plain", "json":
		return ux.ModePlain
	}
	if f, ok := a.out.(*os.File); ok {
		return ux.DetectMode(f)
	}
	return ux.ModePlain
}

// =============================================================================
// Grading setup
// =============================================================================

// session is a compiled script ready to grade submissions.
type session struct {
	script   *script.Script
	chain    *chain.LazyChain
	grader   *grade.Grader
	solution string
	pre      string
}

// newSession loads the script and solution and builds the grader.
func (a *app) newSession() (*session, error) {
	if a.cfg.Script == "" {
		return nil, errNoScript
	}
	s, err := script.Load(a.cfg.Script)
	if err != nil {
		return nil, err
	}
	tech := s.Technology
	if a.cfg.Technology != "" {
		tech = a.cfg.Technology
	}
	g, err := treesitter.Lookup(tech)
	if err != nil {
		return nil, err
	}
	c, err := script.Compile(a.registry, s)
	if err != nil {
		return nil, err
	}

	var parserOpts []treesitter.Option
	if a.cfg.MaxFileSize > 0 {
		parserOpts = append(parserOpts, treesitter.WithMaxFileSize(a.cfg.MaxFileSize))
	}
	var dispOpts []selector.Option
	if a.cfg.UnsafeParsing {
		dispOpts = append(dispOpts, selector.WithUnsafeParsing())
	}
	d := treesitter.NewParser(g, parserOpts...).Dispatcher(dispOpts...)

	opts := []grade.Option{
		grade.WithTracerProvider(a.tracerProvider),
		grade.WithCollector(a.collector),
	}
	// JSON results carry the HTML payload the student interface expects.
	if a.cfg.Output != "json" {
		opts = append(opts, grade.WithRenderer(reporter.PlainRenderer{}))
	}

	sess := &session{script: s, chain: c, grader: grade.New(g.Name, d, opts...)}
	if a.cfg.Solution != "" {
		if sess.solution, err = readCode(a.cfg.Solution); err != nil {
			return nil, err
		}
	}
	if a.cfg.PreExercise != "" {
		if sess.pre, err = readCode(a.cfg.PreExercise); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// submission reads the student file at path.
func (s *session) submission(path string) (grade.Submission, error) {
	code, err := readCode(path)
	if err != nil {
		return grade.Submission{}, err
	}
	return grade.Submission{
		ID:              path,
		Path:            path,
		StudentCode:     code,
		SolutionCode:    s.solution,
		PreExerciseCode: s.pre,
	}, nil
}

func readCode(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading code: %w", err)
	}
	return string(data), nil
}
