// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"querypilot/cli/internal/catalog"
	"querypilot/cli/internal/clarify"
	"querypilot/cli/internal/config"
	"querypilot/cli/internal/database"
	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/metrics"
	"querypilot/cli/internal/question"
	"querypilot/cli/internal/resolver"
	"querypilot/cli/internal/sqlcheck"
	"querypilot/cli/internal/sqlexec"
	"querypilot/cli/internal/sqlgen"
	"querypilot/cli/internal/summarize"
)

// User-facing messages for runs that cannot finish.
const (
	MsgUnavailable      = "The assistant is unavailable right now: the database could not be reached. Please try again later."
	MsgModelUnavailable = "The assistant is unavailable right now: the language model could not be reached. Please try again later."
	MsgClarifyTimeout   = "No answer was given to the clarification question in time, so the question was not answered."
	msgErrorProcessing  = "Error processing query: "
	defaultDataSubject  = "sales, shipment and product data"
)

// Opener opens a fresh database connection for one run.
type Opener func(ctx context.Context) (database.Conn, error)

// Assistant answers one question per Run. It holds no per-run state, so one
// value can serve many runs as long as each has its own Prompter.
type Assistant struct {
	Open        Opener
	Tables      []string
	SampleLimit int
	Workers     int
	LLM         llm.Completer
	// Subject describes the data to the question validator.
	Subject  string
	Policy   resolver.Policy
	Prompter clarify.Prompter
	MaxRows  int
	Logger   *slog.Logger
}

// FromConfig fills an Assistant from cfg.
func FromConfig(cfg *config.Config, open Opener, model llm.Completer, log *slog.Logger) Assistant {
	return Assistant{
		Open:        open,
		Tables:      cfg.DB.Tables,
		SampleLimit: cfg.DB.SampleLimit,
		Workers:     cfg.DB.Workers,
		LLM:         model,
		Policy: resolver.Policy{
			AcceptThreshold:    cfg.Resolver.AcceptThreshold,
			Margin:             cfg.Resolver.Margin,
			CandidateThreshold: cfg.Resolver.CandidateThreshold,
			MaxOptions:         cfg.Resolver.MaxOptions,
			OnTimeout:          resolver.TimeoutPolicy(cfg.Resolver.TimeoutPolicy),
		},
		MaxRows: cfg.Query.MaxRows,
		Logger:  log,
	}
}

func (a *Assistant) log() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.Logger
}

// Run opens a connection, builds a fresh catalog and answers query. The
// returned state is never nil and always carries a FinalOutput; the error is
// set when the run could not complete normally.
func (a *Assistant) Run(ctx context.Context, query string) (*State, error) {
	st := &State{UserQuery: query}
	if strings.TrimSpace(query) == "" {
		st.RouteDecision = RouteSummarizedResults
		st.FinalOutput = question.MsgEmpty
		metrics.Runs.WithLabelValues(metrics.OutcomeRejected).Inc()
		return st, nil
	}
	if a.Open == nil {
		return a.fail(st, qerrors.New(qerrors.DatabaseUnavailable, "no database configured"))
	}

	conn, err := a.Open(ctx)
	if err != nil {
		return a.fail(st, qerrors.Wrap(qerrors.DatabaseUnavailable, "open database", err))
	}
	defer conn.Close()

	start := time.Now()
	b := &catalog.Builder{Conn: conn, SampleLimit: a.SampleLimit, Workers: a.Workers, Logger: a.Logger}
	cat, err := b.Build(ctx, a.Tables)
	metrics.CatalogBuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return a.fail(st, err)
	}
	return a.RunWithCatalog(ctx, conn, query, cat)
}

// RunWithCatalog answers query against an existing catalog, executing on
// conn.
func (a *Assistant) RunWithCatalog(ctx context.Context, conn database.Conn, query string, cat *catalog.Catalog) (*State, error) {
	st := &State{UserQuery: query, Catalog: cat, TableColumns: cat.TableColumns()}

	if _, err := a.components(conn).Graph().Run(ctx, st); err != nil {
		return a.fail(st, err)
	}
	metrics.Runs.WithLabelValues(outcome(st)).Inc()
	a.log().Info("question answered",
		"route", st.RouteDecision,
		"validation", st.ValidationStatus,
		"execution", st.ExecutionStatus,
		"rows", len(st.Rows()))
	return st, nil
}

func (a *Assistant) components(conn database.Conn) *Components {
	subject := a.Subject
	if subject == "" {
		subject = defaultDataSubject
	}
	var prompter clarify.Prompter
	if a.Prompter != nil {
		prompter = countingPrompter{a.Prompter}
	}
	policy := a.Policy
	if policy == (resolver.Policy{}) {
		policy = resolver.DefaultPolicy()
	}
	return &Components{
		Validator:  &question.Validator{LLM: a.LLM, Subject: subject, Logger: a.Logger},
		Resolver:   &resolver.Resolver{LLM: a.LLM, Prompter: prompter, Policy: policy, Logger: a.Logger},
		Generator:  &sqlgen.Generator{LLM: a.LLM},
		Checker:    sqlcheck.Checker{DefaultLimit: a.MaxRows},
		Executor:   &sqlexec.Executor{Conn: conn, Logger: a.Logger},
		Summarizer: &summarize.Summarizer{LLM: a.LLM, Logger: a.Logger},
		Dialect:    conn.Dialect(),
		MaxRows:    a.MaxRows,
		Logger:     a.Logger,
	}
}

func (a *Assistant) fail(st *State, err error) (*State, error) {
	st.FinalOutput = UserMessage(err)
	st.ReasoningTrace = append(st.ReasoningTrace, "pipeline: "+logging.Mask(err.Error()))
	label := metrics.OutcomeError
	switch qerrors.KindOf(err) {
	case qerrors.CatalogUnavailable, qerrors.DatabaseUnavailable, qerrors.LLMUnavailable:
		label = metrics.OutcomeUnavailable
	}
	metrics.Runs.WithLabelValues(label).Inc()
	a.log().Warn("run failed", "error", logging.Mask(err.Error()))
	return st, err
}

// UserMessage converts a run error into the text shown to the user.
func UserMessage(err error) string {
	switch qerrors.KindOf(err) {
	case qerrors.CatalogUnavailable, qerrors.DatabaseUnavailable:
		return MsgUnavailable
	case qerrors.LLMUnavailable:
		return MsgModelUnavailable
	case qerrors.ClarificationTimeout:
		return MsgClarifyTimeout
	}
	return msgErrorProcessing + logging.Mask(err.Error())
}

func outcome(st *State) string {
	switch {
	case st.RouteDecision != RouteEntityResolver:
		return metrics.OutcomeRejected
	case st.ValidationStatus == sqlcheck.StatusInvalid:
		return metrics.OutcomeInvalidSQL
	case st.ExecutionStatus != sqlexec.StatusSuccess:
		return metrics.OutcomeExecFailed
	}
	return metrics.OutcomeAnswered
}

type countingPrompter struct{ clarify.Prompter }

func (p countingPrompter) Ask(ctx context.Context, req clarify.Request) (string, error) {
	metrics.Clarifications.Inc()
	return p.Prompter.Ask(ctx, req)
}
