// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grade runs check chains against submissions and turns the
// outcome into a result for the host.
//
// A student failure becomes an incorrect verdict with feedback and
// highlight; an authoring error becomes an error result carrying a
// diagnostic for the exercise author. Nothing is persisted.
package grade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/datacamp/protowhat/services/sct"
	"github.com/datacamp/protowhat/services/sct/metrics"
	"github.com/datacamp/protowhat/services/sct/reporter"
	"github.com/datacamp/protowhat/services/sct/selector"
)

const tracerName = "protowhat.grade"

// ErrNoCheck is returned when Grade is called without a check.
var ErrNoCheck = errors.New("no check to run")

// Submission is one piece of student code with its reference solution.
type Submission struct {
	// ID identifies the submission in batch results, e.g. a file name.
	ID string `json:"id,omitempty"`

	StudentCode     string `json:"student_code"`
	SolutionCode    string `json:"solution_code"`
	PreExerciseCode string `json:"pre_exercise_code,omitempty"`

	// Path is the file the student code came from.
	Path string `json:"path,omitempty"`

	// Errors records that running the student code raised errors.
	Errors bool `json:"errors,omitempty"`

	// ForceDiagnose always runs the diagnosis of check_correct.
	ForceDiagnose bool `json:"force_diagnose,omitempty"`
}

// Result is the outcome of grading one submission.
type Result struct {
	RunID        string            `json:"run_id"`
	SubmissionID string            `json:"submission_id,omitempty"`
	Technology   string            `json:"technology"`
	Outcome      string            `json:"outcome"`
	Payload      *reporter.Payload `json:"payload,omitempty"`
	Error        string            `json:"error,omitempty"`
	Diagnostic   string            `json:"diagnostic,omitempty"`
	Tests        int               `json:"tests"`
	Duration     time.Duration     `json:"duration_ns"`
}

// Correct reports whether the submission passed.
func (r *Result) Correct() bool {
	return r.Payload != nil && r.Payload.Correct
}

// Option configures a Grader.
type Option func(*Grader)

// WithTracerProvider sets the provider of grading spans. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Grader) {
		g.tracer = tp.Tracer(tracerName)
	}
}

// WithCollector records tests, verdicts and run durations in c.
func WithCollector(c *metrics.Collector) Option {
	return func(g *Grader) {
		g.collector = c
	}
}

// WithRenderer sets the renderer of payload messages. Defaults to
// markdown.
func WithRenderer(r reporter.Renderer) Option {
	return func(g *Grader) {
		g.renderer = r
	}
}

// Grader grades submissions of one technology.
//
// Thread Safety:
//
//	Safe for concurrent use. Every Grade call builds its own reporter and
//	root state.
type Grader struct {
	technology string
	dispatcher *selector.Dispatcher
	tracer     trace.Tracer
	collector  *metrics.Collector
	renderer   reporter.Renderer
}

// New creates a grader parsing with d.
//
// Example:
//
//	g := grade.New("python", treesitter.NewDispatcher(treesitter.Python()))
//	res, err := g.Grade(ctx, sctChain, grade.Submission{StudentCode: "1 + 1", SolutionCode: "3 + 3"})
func New(technology string, d *selector.Dispatcher, opts ...Option) *Grader {
	g := &Grader{
		technology: technology,
		dispatcher: d,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Grade runs check against sub.
//
// Description:
//
//	A fresh reporter and root state are built for the run. Student
//	failures and authoring errors are both results, not errors: the
//	returned error is only set when ctx is done or check is nil.
//
// Outputs:
//
//	*Result - The outcome, with a new RunID.
//	error   - ErrNoCheck or the context error.
func (g *Grader) Grade(ctx context.Context, check sct.Check, sub Submission) (*Result, error) {
	if check == nil {
		return nil, ErrNoCheck
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("grade canceled before start: %w", err)
	}

	res := &Result{RunID: uuid.NewString(), SubmissionID: sub.ID, Technology: g.technology}
	ctx, span := g.tracer.Start(ctx, "sct.Grade",
		trace.WithAttributes(
			attribute.String("sct.run_id", res.RunID),
			attribute.String("sct.technology", g.technology),
			attribute.String("sct.submission", sub.ID),
		),
	)
	defer span.End()
	start := time.Now()

	opts := []reporter.Option{
		reporter.WithErrors(sub.Errors),
		reporter.WithObserver(spanObserver{span: span}),
	}
	if g.renderer != nil {
		opts = append(opts, reporter.WithRenderer(g.renderer))
	}
	if g.collector != nil {
		opts = append(opts, reporter.WithObserver(g.collector))
	}
	rep := reporter.New(opts...)

	state, err := sct.New(sct.Config{
		StudentCode:     sub.StudentCode,
		SolutionCode:    sub.SolutionCode,
		PreExerciseCode: sub.PreExerciseCode,
		Path:            sub.Path,
		ForceDiagnose:   sub.ForceDiagnose,
		Dispatcher:      g.dispatcher,
		Reporter:        rep,
	})
	if err == nil {
		_, err = check.Run(state)
	}
	g.conclude(res, rep, err)

	res.Tests = len(rep.Tests())
	res.Duration = time.Since(start)
	span.SetAttributes(attribute.String("sct.outcome", res.Outcome))
	if res.Outcome == metrics.OutcomeError {
		span.SetStatus(codes.Error, res.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if g.collector != nil {
		g.collector.ObserveRun(g.technology, res.Outcome, res.Duration)
	}

	slog.Info("graded submission",
		slog.String("run_id", res.RunID),
		slog.String("technology", g.technology),
		slog.String("submission", sub.ID),
		slog.String("outcome", res.Outcome),
		slog.Int("tests", res.Tests),
		slog.Duration("duration", res.Duration))

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("grade canceled: %w", err)
	}
	return res, nil
}

// conclude fills the verdict of res from the error the run ended with.
func (g *Grader) conclude(res *Result, rep *reporter.Reporter, err error) {
	var (
		student   *sct.StudentFailure
		authoring *sct.AuthoringError
	)
	switch {
	case err == nil:
		p := rep.BuildFinalPayload()
		res.Payload = &p
	case errors.As(err, &student):
		p := rep.BuildFailedPayload(student.Feedback())
		res.Payload = &p
	case errors.As(err, &authoring):
		res.Error = authoring.Error()
		res.Diagnostic = authoring.Diagnostic()
		slog.Warn("check failed to run",
			slog.String("run_id", res.RunID),
			slog.String("error", res.Error))
	default:
		res.Error = err.Error()
		res.Diagnostic = err.Error()
		slog.Warn("grading stopped by unexpected error",
			slog.String("run_id", res.RunID),
			slog.String("error", res.Error))
	}

	switch {
	case res.Payload == nil:
		res.Outcome = metrics.OutcomeError
	case res.Payload.Correct:
		res.Outcome = metrics.OutcomeCorrect
	default:
		res.Outcome = metrics.OutcomeIncorrect
	}
}

// GradeAll grades subs concurrently with at most limit runs in flight.
//
// Description:
//
//	Results keep the order of subs. Grading stops early only when ctx is
//	done. A limit below 1 means no limit.
func (g *Grader) GradeAll(ctx context.Context, check sct.Check, subs []Submission, limit int) ([]*Result, error) {
	results := make([]*Result, len(subs))
	eg, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for i, sub := range subs {
		eg.Go(func() error {
			res, err := g.Grade(ctx, check, sub)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// spanObserver adds an event to the run's span for every recorded test.
type spanObserver struct {
	span trace.Span
}

func (o spanObserver) ObserveTest(t *reporter.Test) {
	passed, _ := t.Result()
	o.span.AddEvent("sct.test", trace.WithAttributes(
		attribute.String("sct.test.name", t.Name()),
		attribute.Bool("sct.test.passed", passed),
	))
}

func (o spanObserver) ObservePayload(p reporter.Payload) {
	o.span.SetAttributes(attribute.Bool("sct.correct", p.Correct))
}
