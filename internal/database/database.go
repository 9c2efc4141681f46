// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package database is the thin layer between querypilot and the relational
// store it answers questions about. It exposes exactly what the assistant
// needs: ordered column metadata, distinct-value sampling and read-only
// query execution.
package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"querypilot/cli/internal/dsn"
	qerrors "querypilot/cli/internal/errors"
)

// Column describes one column of a table, in declaration order.
type Column struct {
	Name string
	Type string
}

// Rows is a fully materialized query result.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Conn is a live connection to the database being queried.
type Conn interface {
	// Columns lists the columns of table in declaration order. A table that
	// does not exist yields an empty slice and no error.
	Columns(ctx context.Context, table string) ([]Column, error)
	// DistinctValues returns up to limit distinct non-null values of a column,
	// rendered as text, most frequent first.
	DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error)
	// QueryReadOnly runs one statement in a read-only transaction.
	QueryReadOnly(ctx context.Context, sql string) (Rows, error)
	// Dialect names the SQL dialect, for prompts.
	Dialect() string
	Ping(ctx context.Context) error
	Close()
}

// Options tune a connection.
type Options struct {
	// StatementTimeout bounds every read-only query. Zero means no bound.
	StatementTimeout time.Duration
	// MaxConns caps the pool size (Postgres only).
	MaxConns int32
}

// Open connects to the database the resolved DSN points at and pings it.
func Open(ctx context.Context, r dsn.Resolved, opts Options) (Conn, error) {
	var (
		c   Conn
		err error
	)
	switch r.Kind {
	case dsn.KindPostgres:
		c, err = OpenPostgres(ctx, r.DSN, opts)
	case dsn.KindSQLite:
		c, err = OpenSQLite(ctx, r.DSN, opts)
	default:
		return nil, qerrors.New(qerrors.InvalidConfig, "unsupported database kind "+string(r.Kind))
	}
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, qerrors.Wrap(qerrors.DatabaseUnavailable, "ping", err)
	}
	return c, nil
}

// QuoteIdent quotes a possibly schema-qualified identifier. Both supported
// dialects accept double-quoted identifiers.
func QuoteIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// splitTable splits "schema.table"; schema is empty when absent.
func splitTable(name string) (schema, table string) {
	if s, t, ok := strings.Cut(name, "."); ok {
		return s, t
	}
	return "", name
}
