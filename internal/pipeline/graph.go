// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pipeline wires the stages of a run into a graph and drives it.
//
// The graph is fixed:
//
//	question_validator -> entity_resolver | summarized_results
//	entity_resolver -> sql_generator -> validator_sql -> executor_sql -> summarized_results -> END
//
// Stages report problems through status fields. A stage error aborts the run
// and is returned to the caller.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/metrics"
)

var tracer = otel.Tracer("querypilot/pipeline")

// Stage reads a snapshot of the state and returns its writes.
type Stage func(ctx context.Context, s State) (Update, error)

// Graph holds one stage per node.
type Graph struct {
	Stages map[Node]Stage
	Logger *slog.Logger
}

// Next returns the node that follows n for state s.
func Next(n Node, s *State) Node {
	switch n {
	case NodeQuestionValidator:
		if s.RouteDecision == RouteEntityResolver {
			return NodeEntityResolver
		}
		return NodeSummarizedResults
	case NodeEntityResolver:
		return NodeSQLGenerator
	case NodeSQLGenerator:
		return NodeValidatorSQL
	case NodeValidatorSQL:
		return NodeExecutorSQL
	case NodeExecutorSQL:
		return NodeSummarizedResults
	}
	return NodeEnd
}

// Run drives s from question_validator to END.
func (g *Graph) Run(ctx context.Context, s *State) (*State, error) {
	log := g.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	for node := NodeQuestionValidator; node != NodeEnd; node = Next(node, s) {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		stage, ok := g.Stages[node]
		if !ok {
			return s, fmt.Errorf("pipeline: no stage for node %s", node)
		}

		ctx, span := tracer.Start(ctx, string(node), trace.WithAttributes(
			attribute.String("querypilot.node", string(node)),
		))
		start := time.Now()
		u, err := stage(ctx, *s)
		elapsed := time.Since(start)
		metrics.NodeDuration.WithLabelValues(string(node)).Observe(elapsed.Seconds())

		s.Apply(u)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, logging.Mask(err.Error()))
			span.End()
			metrics.NodeErrors.WithLabelValues(string(node)).Inc()
			log.Warn("stage aborted run", "node", node, "error", logging.Mask(err.Error()), "elapsed", elapsed)
			return s, err
		}
		span.End()
		log.Debug("stage done", "node", node, "elapsed", elapsed)
	}
	return s, nil
}
