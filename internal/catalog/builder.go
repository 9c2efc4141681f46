// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alitto/pond/v2"

	"querypilot/cli/internal/database"
	qerrors "querypilot/cli/internal/errors"
)

const (
	DefaultSampleLimit = 50
	DefaultWorkers     = 4
)

// Builder loads a Catalog from a live connection.
type Builder struct {
	Conn        database.Conn
	SampleLimit int
	Workers     int
	Logger      *slog.Logger
}

type sampleJob struct {
	table, column int
}

// Build reads the given tables. Any missing table or connection error fails
// the whole build; individual sampling failures only thin the value index.
func (b *Builder) Build(ctx context.Context, tables []string) (*Catalog, error) {
	log := b.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if len(tables) == 0 {
		return nil, qerrors.New(qerrors.CatalogUnavailable, "no tables of interest configured")
	}
	limit := b.SampleLimit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	workers := b.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	ts := make([]table, 0, len(tables))
	var jobs []sampleJob
	for _, name := range tables {
		cols, err := b.Conn.Columns(ctx, name)
		if err != nil {
			return nil, qerrors.Wrap(qerrors.CatalogUnavailable, "read columns of "+name, err)
		}
		if len(cols) == 0 {
			return nil, qerrors.New(qerrors.CatalogUnavailable, "table "+name+" does not exist")
		}
		ti := len(ts)
		ts = append(ts, table{name: name, columns: cols, values: map[string][]string{}})
		for ci, col := range cols {
			if Sampleable(col) {
				jobs = append(jobs, sampleJob{table: ti, column: ci})
			}
		}
	}

	pool := pond.NewResultPool[[]string](workers)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, j := range jobs {
		t, col := ts[j.table].name, ts[j.table].columns[j.column].Name
		group.SubmitErr(func() ([]string, error) {
			vals, err := b.Conn.DistinctValues(ctx, t, col, limit)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Warn("catalog: sampling failed, skipping column", "table", t, "column", col, "error", err)
				return nil, nil
			}
			return vals, nil
		})
	}
	results, err := group.Wait()
	if err != nil {
		return nil, qerrors.Wrap(qerrors.CatalogUnavailable, "sample values", err)
	}
	for i, j := range jobs {
		if len(results[i]) > 0 {
			t := &ts[j.table]
			t.values[t.columns[j.column].Name] = results[i]
		}
	}

	cat := newCatalog(ts)
	log.Debug("catalog: built", "tables", len(ts), "sampled_columns", len(jobs), "entities", len(cat.Entities()))
	return cat, nil
}

var skipNames = []string{"date", "time", "hash", "uuid", "token", "password", "email"}

// Sampleable reports whether a column is worth sampling for entity values:
// text-typed and not an identifier, timestamp or secret by name.
func Sampleable(col database.Column) bool {
	name := strings.ToLower(col.Name)
	if name == "id" || strings.HasSuffix(name, "_id") || strings.HasSuffix(name, "_at") || strings.HasSuffix(name, "_on") {
		return false
	}
	for _, s := range skipNames {
		if strings.Contains(name, s) {
			return false
		}
	}
	typ := strings.ToLower(col.Type)
	if typ == "" {
		return true
	}
	for _, t := range []string{"char", "text", "clob", "string", "user-defined"} {
		if strings.Contains(typ, t) {
			return true
		}
	}
	return false
}
