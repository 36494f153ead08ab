// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics exports grading activity as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/datacamp/protowhat/services/sct/reporter"
)

const (
	// DefaultNamespace is the metric namespace.
	DefaultNamespace = "protowhat"

	// DefaultSubsystem is the metric subsystem.
	DefaultSubsystem = "sct"
)

// Outcome labels.
const (
	OutcomeCorrect   = "correct"
	OutcomeIncorrect = "incorrect"
	OutcomeError     = "error"
)

// ErrInvalidConfig is returned by NewCollector for incomplete configs.
var ErrInvalidConfig = errors.New("invalid metrics config")

// Config configures a Collector.
type Config struct {
	// Namespace and Subsystem prefix every metric name.
	Namespace string
	Subsystem string

	// Registry receives the metrics. nil uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// DurationBuckets are the histogram buckets of grading durations.
	DurationBuckets []float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:       DefaultNamespace,
		Subsystem:       DefaultSubsystem,
		DurationBuckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return errors.Join(ErrInvalidConfig, errors.New("namespace is required"))
	}
	if c.Subsystem == "" {
		return errors.Join(ErrInvalidConfig, errors.New("subsystem is required"))
	}
	return nil
}

// Collector counts tests and verdicts of grading runs.
//
// Description:
//
//	A Collector is a reporter.Observer: attach it with
//	reporter.WithObserver and it counts every test the reporter records,
//	by test name and result, and every payload it builds, by outcome.
//	Grading hosts also record run durations and authoring errors.
//
// Thread Safety:
//
//	Safe for concurrent use; one Collector may observe many reporters.
type Collector struct {
	tests    *prometheus.CounterVec
	payloads *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	cfg := metrics.DefaultConfig()
//	cfg.Registry = reg
//	c, err := metrics.NewCollector(cfg)
//	rep := reporter.New(reporter.WithObserver(c))
func NewCollector(cfg Config) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultConfig().DurationBuckets
	}
	factory := promauto.With(registry)

	return &Collector{
		tests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tests_total",
			Help:      "Tests recorded by reporters, by test name and result",
		}, []string{"test", "result"}),
		payloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "payloads_total",
			Help:      "Verdicts built by reporters, by outcome",
		}, []string{"outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "run_duration_seconds",
			Help:      "Duration of grading runs in seconds",
			Buckets:   cfg.DurationBuckets,
		}, []string{"technology", "outcome"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "authoring_errors_total",
			Help:      "Grading runs aborted by a faulty check",
		}, []string{"technology"}),
	}, nil
}

// ObserveTest implements reporter.Observer.
func (c *Collector) ObserveTest(t *reporter.Test) {
	passed, ran := t.Result()
	result := "skipped"
	switch {
	case ran && passed:
		result = "passed"
	case ran:
		result = "failed"
	}
	c.tests.WithLabelValues(t.Name(), result).Inc()
}

// ObservePayload implements reporter.Observer.
func (c *Collector) ObservePayload(p reporter.Payload) {
	outcome := OutcomeIncorrect
	if p.Correct {
		outcome = OutcomeCorrect
	}
	c.payloads.WithLabelValues(outcome).Inc()
}

// ObserveRun records the duration of one grading run.
//
// Inputs:
//
//	technology - The graded language, e.g. "python".
//	outcome    - OutcomeCorrect, OutcomeIncorrect or OutcomeError.
//	d          - The run duration.
func (c *Collector) ObserveRun(technology, outcome string, d time.Duration) {
	c.duration.WithLabelValues(technology, outcome).Observe(d.Seconds())
	if outcome == OutcomeError {
		c.errors.WithLabelValues(technology).Inc()
	}
}
