// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec runs validated queries against the database and turns the
// driver's values into display-ready ones.
//
// Key features include:
//   - Read-only execution through database.Conn
//   - Ordered rows with a map view for templating
//   - JSON result formatting with proper type handling
//   - Masked driver errors; nothing panics or propagates
package sqlexec

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"querypilot/cli/internal/database"
	"querypilot/cli/internal/logging"
)

// Status is the outcome of an execution. The zero value means the query was
// not executed.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Row is one result row. Values follow the result's column order.
type Row struct {
	Columns []string
	Values  []any
}

// Map returns the row keyed by column name. Later duplicates win.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		if i < len(r.Values) {
			m[c] = r.Values[i]
		}
	}
	return m
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as an array in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Values)
}

// Result represents a normalized SQL result for JSON marshaling.
type Result struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	Status  Status   `json:"status"`
	Error   string   `json:"error,omitempty"`
}

// NotExecuted records a query that was refused before reaching the database.
func NotExecuted(reason string) Result {
	return Result{Status: StatusFailure, Error: "query was not executed: " + reason}
}

// Executor executes validated SQL through a read-only connection.
type Executor struct {
	Conn   database.Conn
	Logger *slog.Logger
}

// Execute runs sql and reports the outcome in the Result; it never returns
// an error.
func (e *Executor) Execute(ctx context.Context, sql string) Result {
	log := e.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if e.Conn == nil {
		return Result{Status: StatusFailure, Error: "no database connection"}
	}

	start := time.Now()
	rows, err := e.Conn.QueryReadOnly(ctx, sql)
	if err != nil {
		msg := logging.Mask(err.Error())
		log.Warn("query failed", "error", msg, "elapsed", time.Since(start))
		return Result{Status: StatusFailure, Error: msg}
	}

	res := Result{
		Columns: rows.Columns,
		Rows:    make([]Row, 0, len(rows.Values)),
		Status:  StatusSuccess,
	}
	if res.Columns == nil {
		res.Columns = []string{}
	}
	for _, vals := range rows.Values {
		norm := make([]any, len(vals))
		for i, v := range vals {
			norm[i] = Normalize(v)
		}
		res.Rows = append(res.Rows, Row{Columns: res.Columns, Values: norm})
	}
	log.Debug("query executed", "rows", len(res.Rows), "elapsed", time.Since(start))
	return res
}

// Normalize converts a driver value into a string, number, bool or nil.
func Normalize(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case [16]byte:
		return uuid.UUID(v).String()
	case []byte:
		if len(v) == 16 && !utf8.Valid(v) {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		if utf8.Valid(v) {
			return string(v)
		}
		return fmt.Sprintf("\\x%x", v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.RFC3339)
	case pgtype.Numeric:
		if !v.Valid {
			return nil
		}
		if f, err := v.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return nil
	case *big.Int:
		if v.IsInt64() {
			return v.Int64()
		}
		return v.String()
	case driver.Valuer:
		inner, err := v.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return Normalize(inner)
	}
	return val
}
