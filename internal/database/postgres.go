// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	qerrors "querypilot/cli/internal/errors"
)

// Postgres is a Conn backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
	opts Options
}

// OpenPostgres creates the pool. It does not ping.
func OpenPostgres(ctx context.Context, connString string, opts Options) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.InvalidConfig, "parse postgres DSN", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "querypilot"
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.DatabaseUnavailable, "connect", err)
	}
	return &Postgres{pool: pool, opts: opts}, nil
}

func (p *Postgres) Dialect() string { return "PostgreSQL" }

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() { p.pool.Close() }

// Columns reads information_schema; unqualified names resolve in "public".
func (p *Postgres) Columns(ctx context.Context, table string) ([]Column, error) {
	schema, name := splitTable(table)
	if schema == "" {
		schema = "public"
	}
	const q = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := p.pool.Query(ctx, q, schema, name)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Column, error) {
		var c Column
		err := row.Scan(&c.Name, &c.Type)
		return c, err
	})
}

func (p *Postgres) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	col := QuoteIdent(column)
	q := fmt.Sprintf(`SELECT %s::text FROM %s WHERE %s IS NOT NULL GROUP BY 1 ORDER BY COUNT(*) DESC, 1 LIMIT $1`,
		col, QuoteIdent(table), col)
	rows, err := p.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// QueryReadOnly runs sql inside BEGIN READ ONLY with a local statement
// timeout. The transaction is always rolled back.
func (p *Postgres) QueryReadOnly(ctx context.Context, sql string) (Rows, error) {
	var res Rows
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if ms := p.opts.StatementTimeout.Milliseconds(); ms > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)); err != nil {
			return res, err
		}
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return res, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	res.Columns = make([]string, len(fds))
	for i, fd := range fds {
		res.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return res, err
		}
		res.Values = append(res.Values, vals)
	}
	return res, rows.Err()
}
