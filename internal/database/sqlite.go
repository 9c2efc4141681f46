// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	qerrors "querypilot/cli/internal/errors"
)

// SQLite is a Conn over a local database file.
type SQLite struct {
	db   *sql.DB
	opts Options
}

// OpenSQLite opens path (":memory:" for a private in-memory database).
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.DatabaseUnavailable, "open sqlite", err)
	}
	// Every connection to ":memory:" is its own database.
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	return &SQLite{db: db, opts: opts}, nil
}

func (s *SQLite) Dialect() string { return "SQLite" }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() { _ = s.db.Close() }

// Exec runs a write statement. The assistant never calls it; fixtures and
// demo data loading do.
func (s *SQLite) Exec(ctx context.Context, stmt string, args ...any) error {
	_, err := s.db.ExecContext(ctx, stmt, args...)
	return err
}

func (s *SQLite) Columns(ctx context.Context, table string) ([]Column, error) {
	_, name := splitTable(table)
	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (s *SQLite) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	_, name := splitTable(table)
	col := QuoteIdent(column)
	q := fmt.Sprintf(`SELECT CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL GROUP BY 1 ORDER BY COUNT(*) DESC, 1 LIMIT ?`,
		col, QuoteIdent(name), col)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// QueryReadOnly pins one connection, switches it to query_only for the
// duration of the statement and switches it back before release.
func (s *SQLite) QueryReadOnly(ctx context.Context, query string) (Rows, error) {
	var res Rows
	if s.opts.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.StatementTimeout)
		defer cancel()
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return res, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return res, err
	}
	defer conn.ExecContext(context.Background(), "PRAGMA query_only = OFF") //nolint:errcheck

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return res, err
	}
	defer rows.Close()

	if res.Columns, err = rows.Columns(); err != nil {
		return res, err
	}
	for rows.Next() {
		vals := make([]any, len(res.Columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return res, err
		}
		res.Values = append(res.Values, vals)
	}
	return res, rows.Err()
}
