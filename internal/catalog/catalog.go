// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package catalog holds the per-question snapshot of what can be queried:
// tables, their ordered columns and a sample of the distinct values found in
// text columns. The entity resolver matches user mentions against those
// values and the SQL stages check identifiers against the schema.
//
// A Catalog never changes after it is built; every accessor returns a copy.
package catalog

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"querypilot/cli/internal/database"
)

// Entity is one known value and where it lives.
type Entity struct {
	Table  string
	Column string
	Value  string
}

// Qualified renders "table.column".
func (e Entity) Qualified() string { return e.Table + "." + e.Column }

type table struct {
	name    string
	columns []database.Column
	values  map[string][]string // column -> sampled values
}

// Catalog is an immutable schema and value snapshot.
type Catalog struct {
	tables []table
	index  map[string]int // lower(table) -> position
}

// New builds a snapshot directly from column and value maps. Tables are
// ordered by name. Values for columns not listed in columns are ignored.
func New(columns map[string][]string, values map[string]map[string][]string) *Catalog {
	names := make([]string, 0, len(columns))
	for t := range columns {
		names = append(names, t)
	}
	sort.Strings(names)

	ts := make([]table, 0, len(names))
	for _, n := range names {
		t := table{name: n, values: map[string][]string{}}
		for _, c := range columns[n] {
			t.columns = append(t.columns, database.Column{Name: c})
			if v := values[n][c]; len(v) > 0 {
				t.values[c] = slices.Clone(v)
			}
		}
		ts = append(ts, t)
	}
	return newCatalog(ts)
}

func newCatalog(ts []table) *Catalog {
	c := &Catalog{tables: ts, index: make(map[string]int, len(ts))}
	for i, t := range ts {
		c.index[strings.ToLower(t.name)] = i
	}
	return c
}

func (c *Catalog) lookup(name string) (*table, bool) {
	i, ok := c.index[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &c.tables[i], true
}

// Tables returns table names in catalog order.
func (c *Catalog) Tables() []string {
	out := make([]string, len(c.tables))
	for i, t := range c.tables {
		out[i] = t.name
	}
	return out
}

// Columns returns the ordered column names of a table, or nil.
func (c *Catalog) Columns(tableName string) []string {
	t, ok := c.lookup(tableName)
	if !ok {
		return nil
	}
	out := make([]string, len(t.columns))
	for i, col := range t.columns {
		out[i] = col.Name
	}
	return out
}

// TableColumns returns every table's ordered column list.
func (c *Catalog) TableColumns() map[string][]string {
	out := make(map[string][]string, len(c.tables))
	for _, t := range c.tables {
		out[t.name] = c.Columns(t.name)
	}
	return out
}

// HasTable reports whether a table exists, ignoring case.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.lookup(name)
	return ok
}

// HasColumn reports whether table has column, ignoring case.
func (c *Catalog) HasColumn(tableName, column string) bool {
	t, ok := c.lookup(tableName)
	if !ok {
		return false
	}
	for _, col := range t.columns {
		if strings.EqualFold(col.Name, column) {
			return true
		}
	}
	return false
}

// ColumnOwners lists the tables that have a column of that name.
func (c *Catalog) ColumnOwners(column string) []string {
	var out []string
	for _, t := range c.tables {
		if c.HasColumn(t.name, column) {
			out = append(out, t.name)
		}
	}
	return out
}

// AllColumns returns every distinct column name across tables.
func (c *Catalog) AllColumns() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range c.tables {
		for _, col := range t.columns {
			if !seen[col.Name] {
				seen[col.Name] = true
				out = append(out, col.Name)
			}
		}
	}
	return out
}

// Values returns the sampled values of a column.
func (c *Catalog) Values(tableName, column string) []string {
	t, ok := c.lookup(tableName)
	if !ok {
		return nil
	}
	return slices.Clone(t.values[column])
}

// Entities flattens the value index, in table then column order.
func (c *Catalog) Entities() []Entity {
	var out []Entity
	for _, t := range c.tables {
		for _, col := range t.columns {
			for _, v := range t.values[col.Name] {
				out = append(out, Entity{Table: t.name, Column: col.Name, Value: v})
			}
		}
	}
	return out
}

// ValueCount is the number of sampled values for a table.
func (c *Catalog) ValueCount(tableName string) int {
	t, ok := c.lookup(tableName)
	if !ok {
		return 0
	}
	n := 0
	for _, v := range t.values {
		n += len(v)
	}
	return n
}

const annotateSamples = 5

// Annotate renders the schema for the SQL generator. Columns holding one of
// the relevant entities are marked with the exact stored value.
func (c *Catalog) Annotate(relevant []Entity) string {
	marks := map[string][]string{}
	for _, e := range relevant {
		k := strings.ToLower(e.Qualified())
		marks[k] = append(marks[k], e.Value)
	}

	var b strings.Builder
	for i, t := range c.tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "TABLE %s\n", t.name)
		for _, col := range t.columns {
			b.WriteString("  - ")
			b.WriteString(col.Name)
			if col.Type != "" {
				fmt.Fprintf(&b, " (%s)", strings.ToLower(col.Type))
			}
			if vals := t.values[col.Name]; len(vals) > 0 {
				shown := vals[:min(len(vals), annotateSamples)]
				fmt.Fprintf(&b, " e.g. %s", quoteAll(shown))
				if len(vals) > len(shown) {
					fmt.Fprintf(&b, " (+%d more)", len(vals)-len(shown))
				}
			}
			if m := marks[strings.ToLower(t.name+"."+col.Name)]; len(m) > 0 {
				fmt.Fprintf(&b, "  <- matches %s", quoteAll(m))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func quoteAll(vals []string) string {
	q := make([]string, len(vals))
	for i, v := range vals {
		q[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(q, ", ")
}
