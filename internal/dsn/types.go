// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn detects, parses and normalizes the connection strings querypilot
// accepts, and decides which one is in effect (flag, environment or keychain).
package dsn

import (
	"fmt"
	"strings"
)

// Kind is the database family a DSN points at.
type Kind string

const (
	KindPostgres Kind = "postgresql"
	KindSQLite   Kind = "sqlite"
	KindUnknown  Kind = "unknown"
)

// Info contains parsed information from a DSN string.
type Info struct {
	Kind     Kind
	Host     string
	Port     string
	User     string
	Password string
	Database string // file path for SQLite
	Params   map[string]string
	Original string
}

// ParseError represents an error that occurred during DSN parsing.
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid DSN format: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid DSN format: %s", e.Reason)
}

// NewParseError creates a new ParseError
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{DSN: dsn, Reason: reason, Hint: hint}
}

// Detect reports the database family from the DSN prefix.
func Detect(dsn string) Kind {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return KindPostgres
	case strings.HasPrefix(lower, "sqlite:"), strings.HasPrefix(lower, "file:"),
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return KindSQLite
	}
	return KindUnknown
}

// Parse parses any supported DSN.
func Parse(dsn string) (*Info, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection string")
	}
	switch Detect(dsn) {
	case KindPostgres:
		return parsePostgres(dsn)
	case KindSQLite:
		path := strings.TrimSpace(dsn)
		for _, p := range []string{"sqlite://", "sqlite:", "file:"} {
			if len(path) >= len(p) && strings.EqualFold(path[:len(p)], p) {
				path = path[len(p):]
				break
			}
		}
		if path == "" {
			return nil, NewParseError(dsn, "missing database file", "use sqlite:path/to/file.db")
		}
		return &Info{Kind: KindSQLite, Database: path, Original: dsn}, nil
	}
	return nil, NewParseError(dsn, "unknown database type", "use postgres://... or sqlite:path/to/file.db")
}

// Normalize returns the canonical connection string for info.
func Normalize(info *Info) (string, error) {
	if info == nil {
		return "", NewParseError("", "nil DSN info", "")
	}
	switch info.Kind {
	case KindPostgres:
		return normalizePostgres(info)
	case KindSQLite:
		return info.Database, nil
	}
	return "", NewParseError(info.Original, "unknown database type", "")
}

// DatabaseName returns the database a DSN points at, or "" if it cannot be
// parsed.
func DatabaseName(dsn string) string {
	info, err := Parse(dsn)
	if err != nil {
		return ""
	}
	return info.Database
}
