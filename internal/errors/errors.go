// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages, so the pipeline can tell a fatal setup failure apart from
// a problem that should simply be summarized back to the user.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// CatalogUnavailable indicates the catalog could not be built for this query cycle.
	CatalogUnavailable Kind = "catalog_unavailable"
	// DatabaseUnavailable indicates the database could not be reached.
	DatabaseUnavailable Kind = "database_unavailable"
	// LLMUnavailable indicates the text-generation backend failed.
	LLMUnavailable Kind = "llm_unavailable"
	// ClarificationTimeout indicates nobody answered a clarification request in time.
	ClarificationTimeout Kind = "clarification_timeout"
	// InvalidConfig indicates a configuration value that cannot be used.
	InvalidConfig Kind = "invalid_config"
	// RunInProgress indicates a session already has an active run.
	RunInProgress Kind = "run_in_progress"
	// Internal indicates a run stopped on an unexpected failure.
	Internal Kind = "internal"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// Is reports whether target is an *E of the same kind, which lets callers
// write errors.Is(err, errors.New(errors.LLMUnavailable, "")).
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	return ok && t.Kind == e.Kind
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
