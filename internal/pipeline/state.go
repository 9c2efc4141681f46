// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"querypilot/cli/internal/catalog"
	"querypilot/cli/internal/resolver"
	"querypilot/cli/internal/sqlcheck"
	"querypilot/cli/internal/sqlexec"
)

// Route is the question validator's branch decision.
type Route string

const (
	RouteEntityResolver    Route = "entity_resolver"
	RouteSummarizedResults Route = "summarized_results"
)

// Node names a step of the graph.
type Node string

const (
	NodeQuestionValidator Node = "question_validator"
	NodeEntityResolver    Node = "entity_resolver"
	NodeSQLGenerator      Node = "sql_generator"
	NodeValidatorSQL      Node = "validator_sql"
	NodeExecutorSQL       Node = "executor_sql"
	NodeSummarizedResults Node = "summarized_results"
	NodeEnd               Node = "END"
)

// State is threaded through one run. Fields accumulate; nothing a stage
// wrote is cleared by a later stage.
type State struct {
	UserQuery       string
	Catalog         *catalog.Catalog
	TableColumns    map[string][]string
	AnnotatedSchema string

	Resolved resolver.Resolved
	Bindings []resolver.Binding

	SQLCandidate     string
	ValidatedSQL     string
	ValidationStatus sqlcheck.Status
	ValidationError  string
	Corrections      []sqlcheck.Correction

	ExecutionResult sqlexec.Result
	ExecutionStatus sqlexec.Status
	ExecutionError  string

	RouteDecision  Route
	FinalOutput    string
	ReasoningTrace []string
}

// Update is a stage's partial write. Zero fields are left alone and Trace is
// appended.
type Update struct {
	AnnotatedSchema  string
	Resolved         resolver.Resolved
	Bindings         []resolver.Binding
	SQLCandidate     string
	ValidatedSQL     string
	ValidationStatus sqlcheck.Status
	ValidationError  string
	Corrections      []sqlcheck.Correction
	ExecutionResult  sqlexec.Result
	ExecutionStatus  sqlexec.Status
	ExecutionError   string
	RouteDecision    Route
	FinalOutput      string
	Trace            []string
}

// Apply merges u into s.
func (s *State) Apply(u Update) {
	if u.AnnotatedSchema != "" {
		s.AnnotatedSchema = u.AnnotatedSchema
	}
	if u.Resolved.Intent != "" || len(u.Resolved.Entities) > 0 {
		s.Resolved = u.Resolved
	}
	if len(u.Bindings) > 0 {
		s.Bindings = u.Bindings
	}
	if u.SQLCandidate != "" {
		s.SQLCandidate = u.SQLCandidate
	}
	if u.ValidatedSQL != "" {
		s.ValidatedSQL = u.ValidatedSQL
	}
	if u.ValidationStatus != "" {
		s.ValidationStatus = u.ValidationStatus
	}
	if u.ValidationError != "" {
		s.ValidationError = u.ValidationError
	}
	if len(u.Corrections) > 0 {
		s.Corrections = u.Corrections
	}
	if u.ExecutionResult.Status != "" {
		s.ExecutionResult = u.ExecutionResult
	}
	if u.ExecutionStatus != "" {
		s.ExecutionStatus = u.ExecutionStatus
	}
	if u.ExecutionError != "" {
		s.ExecutionError = u.ExecutionError
	}
	if u.RouteDecision != "" {
		s.RouteDecision = u.RouteDecision
	}
	if u.FinalOutput != "" {
		s.FinalOutput = u.FinalOutput
	}
	s.ReasoningTrace = append(s.ReasoningTrace, u.Trace...)
}

// Rows returns the execution result rows.
func (s *State) Rows() []sqlexec.Row { return s.ExecutionResult.Rows }
