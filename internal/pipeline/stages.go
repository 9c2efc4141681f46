// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"querypilot/cli/internal/metrics"
	"querypilot/cli/internal/question"
	"querypilot/cli/internal/resolver"
	"querypilot/cli/internal/sqlcheck"
	"querypilot/cli/internal/sqlexec"
	"querypilot/cli/internal/sqlgen"
	"querypilot/cli/internal/summarize"
)

// Components are the collaborators behind the stages.
type Components struct {
	Validator  *question.Validator
	Resolver   *resolver.Resolver
	Generator  *sqlgen.Generator
	Checker    sqlcheck.Checker
	Executor   *sqlexec.Executor
	Summarizer *summarize.Summarizer
	// Dialect names the SQL dialect for the generator prompt.
	Dialect string
	MaxRows int
	Logger  *slog.Logger
}

// Graph returns the graph over these components.
func (c *Components) Graph() *Graph {
	return &Graph{
		Logger: c.Logger,
		Stages: map[Node]Stage{
			NodeQuestionValidator: c.validate,
			NodeEntityResolver:    c.resolve,
			NodeSQLGenerator:      c.generate,
			NodeValidatorSQL:      c.check,
			NodeExecutorSQL:       c.execute,
			NodeSummarizedResults: c.summarize,
		},
	}
}

func (c *Components) validate(ctx context.Context, s State) (Update, error) {
	v := c.Validator.Validate(ctx, s.UserQuery)
	if v.Proceed {
		return Update{
			RouteDecision: RouteEntityResolver,
			Trace:         []string{"question_validator: " + string(v.Classification)},
		}, nil
	}
	return Update{
		RouteDecision: RouteSummarizedResults,
		FinalOutput:   v.Reason,
		Trace:         []string{fmt.Sprintf("question_validator: rejected (%s)", v.Classification)},
	}, nil
}

func (c *Components) resolve(ctx context.Context, s State) (Update, error) {
	res, err := c.Resolver.Resolve(ctx, s.UserQuery, s.Catalog)
	u := Update{
		Resolved:        res.Resolved,
		Bindings:        res.Bindings,
		AnnotatedSchema: res.AnnotatedSchema,
		Trace:           res.Trace,
	}
	return u, err
}

func (c *Components) generate(ctx context.Context, s State) (Update, error) {
	gen, err := c.Generator.Generate(ctx, sqlgen.Request{
		Question:        s.UserQuery,
		Resolved:        s.Resolved,
		Bindings:        s.Bindings,
		AnnotatedSchema: s.AnnotatedSchema,
		Dialect:         c.Dialect,
		MaxRows:         c.MaxRows,
	})
	if err != nil {
		return Update{}, err
	}
	line := "sql_generator: no SQL produced"
	if gen.SQL != "" {
		line = "sql_generator: candidate produced"
		if gen.Explanation != "" {
			line += " (" + gen.Explanation + ")"
		}
	}
	return Update{SQLCandidate: gen.SQL, Trace: []string{line}}, nil
}

func (c *Components) check(_ context.Context, s State) (Update, error) {
	out := c.Checker.Check(s.SQLCandidate, s.Catalog)
	metrics.ValidationStatus.WithLabelValues(string(out.Status)).Inc()

	trace := []string{"validator_sql: " + string(out.Status)}
	for _, n := range out.Notes {
		trace = append(trace, "validator_sql: "+n)
	}
	if out.Error != "" {
		trace = append(trace, "validator_sql: "+out.Error)
	}
	return Update{
		ValidatedSQL:     out.SQL,
		ValidationStatus: out.Status,
		ValidationError:  out.Error,
		Corrections:      out.Corrections,
		Trace:            trace,
	}, nil
}

func (c *Components) execute(ctx context.Context, s State) (Update, error) {
	var res sqlexec.Result
	if s.ValidationStatus == sqlcheck.StatusInvalid || s.ValidatedSQL == "" {
		reason := s.ValidationError
		if reason == "" {
			reason = "no validated SQL"
		}
		res = sqlexec.NotExecuted(reason)
	} else {
		res = c.Executor.Execute(ctx, s.ValidatedSQL)
	}

	line := fmt.Sprintf("executor_sql: %s, %d rows", res.Status, len(res.Rows))
	if res.Error != "" {
		line = "executor_sql: " + string(res.Status) + ": " + res.Error
	}
	return Update{
		ExecutionResult: res,
		ExecutionStatus: res.Status,
		ExecutionError:  res.Error,
		Trace:           []string{line},
	}, nil
}

func (c *Components) summarize(ctx context.Context, s State) (Update, error) {
	in := summarize.Input{
		Question:         s.UserQuery,
		ValidationStatus: s.ValidationStatus,
		ValidationError:  s.ValidationError,
		SQL:              s.ValidatedSQL,
		Execution:        s.ExecutionResult,
	}
	if s.RouteDecision != RouteEntityResolver {
		in.Rejection = s.FinalOutput
		if strings.TrimSpace(in.Rejection) == "" {
			in.Rejection = question.MsgGeneric
		}
	}
	out := c.Summarizer.Summarize(ctx, in)
	return Update{FinalOutput: out, Trace: []string{"summarized_results: done"}}, nil
}
