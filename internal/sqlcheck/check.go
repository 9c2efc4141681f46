// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlcheck decides whether a generated query may run: it must be a
// single read-only statement over tables and columns the catalog knows.
// Near-miss identifiers are repaired once.
package sqlcheck

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"querypilot/cli/internal/catalog"
)

// Status is the verdict on a query.
type Status string

const (
	StatusValid     Status = "valid"
	StatusCorrected Status = "corrected"
	StatusInvalid   Status = "invalid"
)

const (
	maxEditDistance = 2
	minSimilarity   = 0.75
)

// Correction is one rewritten identifier.
type Correction struct {
	From string
	To   string
}

func (c Correction) String() string { return c.From + " -> " + c.To }

// Outcome is the result of Check. SQL is empty when Status is invalid.
type Outcome struct {
	SQL         string
	Status      Status
	Error       string
	Corrections []Correction
	Notes       []string
}

// Checker validates queries against a catalog.
type Checker struct {
	// DefaultLimit is appended as LIMIT to a top-level query without one.
	// Zero disables it.
	DefaultLimit int
}

// Check validates sql, repairing near-miss identifiers in a single pass.
func (c Checker) Check(sql string, cat *catalog.Catalog) Outcome {
	stmt, toks, err := statement(sql)
	if err != nil {
		return invalid(err.Error())
	}

	issues := resolve(toks, cat)
	if len(issues) == 0 {
		return c.finish(Outcome{SQL: stmt, Status: StatusValid})
	}

	var fixes []Correction
	repaired := stmt
	// Rewrite from the end so earlier spans stay valid.
	sort.Slice(issues, func(i, j int) bool { return issues[i].tok > issues[j].tok })
	for _, is := range issues {
		if is.fix == "" {
			return invalid(is.message())
		}
		t := toks[is.tok]
		repl := is.fix
		if t.kind == tQuoted {
			repl = `"` + strings.ReplaceAll(is.fix, `"`, `""`) + `"`
		}
		repaired = repaired[:t.start] + repl + repaired[t.end:]
		fix := Correction{From: t.text, To: is.fix}
		if !slices.Contains(fixes, fix) {
			fixes = append(fixes, fix)
		}
	}
	for i, j := 0, len(fixes)-1; i < j; i, j = i+1, j-1 {
		fixes[i], fixes[j] = fixes[j], fixes[i]
	}

	// One re-check; no second round of repairs.
	stmt2, toks2, err := statement(repaired)
	if err != nil {
		return invalid(err.Error())
	}
	if left := resolve(toks2, cat); len(left) > 0 {
		return invalid("could not repair query: " + left[0].message())
	}

	out := Outcome{SQL: stmt2, Status: StatusCorrected, Corrections: fixes}
	for _, f := range fixes {
		out.Notes = append(out.Notes, "corrected "+f.String())
	}
	return c.finish(out)
}

func (c Checker) finish(out Outcome) Outcome {
	out.SQL = strings.TrimSpace(out.SQL)
	if c.DefaultLimit <= 0 {
		return out
	}
	toks, err := tokenize(out.SQL)
	if err != nil || hasTopLevelLimit(toks) {
		return out
	}
	out.SQL = fmt.Sprintf("%s LIMIT %d", out.SQL, c.DefaultLimit)
	out.Notes = append(out.Notes, fmt.Sprintf("added LIMIT %d", c.DefaultLimit))
	return out
}

func invalid(reason string) Outcome {
	return Outcome{Status: StatusInvalid, Error: reason}
}

// statement runs the structural checks and returns the single statement
// without its trailing semicolon.
func statement(sql string) (string, []token, error) {
	toks, err := tokenize(sql)
	if err != nil {
		return "", nil, err
	}
	if len(toks) == 0 {
		return "", nil, errEmpty
	}

	for i, t := range toks {
		if !t.is(";") {
			continue
		}
		for _, rest := range toks[i+1:] {
			if !rest.is(";") {
				return "", nil, errMultiStatement
			}
		}
		toks = toks[:i]
		break
	}
	if len(toks) == 0 {
		return "", nil, errEmpty
	}
	// Token spans index into stmt, so leading whitespace stays.
	stmt := sql[:toks[len(toks)-1].end]

	first := toks[0]
	for j := 0; first.is("(") && j+1 < len(toks); j++ {
		first = toks[j+1]
		if !first.is("(") {
			break
		}
	}
	if !first.word("select") && !first.word("with") {
		return "", nil, errNotSelect
	}

	depth := 0
	for i, t := range toks {
		if t.kind == tIdent && writeKeywords[strings.ToLower(t.text)] {
			return "", nil, fmt.Errorf("write or DDL keyword %s is not allowed", strings.ToUpper(t.text))
		}
		if t.kind == tIdent && i+1 < len(toks) && toks[i+1].is("(") && adminFunction(t.text) {
			return "", nil, fmt.Errorf("function %s is not allowed", strings.ToLower(t.text))
		}
		switch {
		case t.is("("):
			depth++
		case t.is(")"):
			depth--
			if depth < 0 {
				return "", nil, errUnbalancedParens
			}
		}
	}
	if depth != 0 {
		return "", nil, errUnbalancedParens
	}
	return stmt, toks, nil
}

// adminFunction reports whether a function call can reach outside the data:
// server administration, session settings, large objects or extensions.
func adminFunction(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range adminFunctionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return adminFunctions[lower]
}

var adminFunctionPrefixes = []string{"pg_", "lo_", "dblink"}

var adminFunctions = wordSet(`
	set_config current_setting query_to_xml load_extension txid_current
`)

func hasTopLevelLimit(toks []token) bool {
	depth := 0
	for _, t := range toks {
		switch {
		case t.is("("):
			depth++
		case t.is(")"):
			depth--
		case depth == 0 && (t.word("limit") || t.word("fetch")):
			return true
		}
	}
	return false
}

var (
	errEmpty            = errors.New("no SQL was generated")
	errMultiStatement   = errors.New("only a single statement is allowed")
	errNotSelect        = errors.New("only SELECT queries are allowed")
	errUnbalancedParens = errors.New("unbalanced parentheses")
)

type issueKind int

const (
	unknownTable issueKind = iota
	unknownColumn
	unknownQualifier
)

type issue struct {
	kind issueKind
	name string
	tok  int
	fix  string // unique catalog candidate, if any
	ctx  []string
}

func (is issue) message() string {
	switch is.kind {
	case unknownTable:
		return fmt.Sprintf("unknown table %q", is.name)
	case unknownQualifier:
		return fmt.Sprintf("unknown table or alias %q", is.name)
	}
	if len(is.ctx) > 0 {
		return fmt.Sprintf("unknown column %q (tables referenced: %s)", is.name, strings.Join(is.ctx, ", "))
	}
	return fmt.Sprintf("unknown column %q", is.name)
}

// resolve checks every relation and column reference against cat.
func resolve(toks []token, cat *catalog.Catalog) []issue {
	a := analyze(toks)
	var issues []issue

	// alias or table name -> catalog table
	relations := map[string]string{}
	// misspelled table name -> its correction
	renamed := map[string]string{}
	var referenced []string
	seen := map[string]bool{}
	for _, ref := range a.tables {
		lower := strings.ToLower(ref.name)
		target := ""
		switch {
		case a.opaque[lower]:
		case cat.HasTable(ref.name):
			target = canonicalTable(cat, ref.name)
		default:
			is := issue{kind: unknownTable, name: ref.name, tok: ref.tok}
			is.fix = closest(ref.name, cat.Tables())
			issues = append(issues, is)
			target = is.fix
			if is.fix != "" {
				renamed[lower] = is.fix
			}
		}
		if target == "" {
			if ref.alias != "" {
				a.opaque[strings.ToLower(ref.alias)] = true
			}
			continue
		}
		relations[strings.ToLower(target)] = target
		relations[lower] = target
		if ref.alias != "" {
			relations[strings.ToLower(ref.alias)] = target
		}
		if !seen[target] {
			seen[target] = true
			referenced = append(referenced, target)
		}
	}

	for _, col := range a.columns {
		if col.name == "*" {
			continue
		}
		if col.qualifier != "" {
			q := strings.ToLower(col.qualifier)
			if fix, ok := renamed[q]; ok {
				issues = append(issues, issue{kind: unknownQualifier, name: col.qualifier, tok: col.tok - 2, fix: fix})
			}
			if target, ok := relations[q]; ok {
				if !cat.HasColumn(target, col.name) {
					is := issue{kind: unknownColumn, name: col.name, tok: col.tok, ctx: []string{target}}
					is.fix = closest(col.name, cat.Columns(target))
					issues = append(issues, is)
				}
				continue
			}
			if a.opaque[q] || cat.HasTable(col.qualifier) {
				continue
			}
			issues = append(issues, issue{kind: unknownQualifier, name: col.qualifier, tok: col.tok - 2})
			continue
		}

		lower := strings.ToLower(col.name)
		if a.outputAliases[lower] || a.opaque[lower] || relations[lower] != "" {
			continue
		}
		scope := referenced
		if len(scope) == 0 {
			scope = cat.Tables()
		}
		if columnIn(cat, scope, col.name) {
			continue
		}
		if len(a.opaque) > 0 && len(cat.ColumnOwners(col.name)) > 0 {
			// Projected through a CTE or derived table.
			continue
		}
		candidates := cat.AllColumns()
		if len(referenced) > 0 {
			candidates = nil
			for _, t := range referenced {
				candidates = append(candidates, cat.Columns(t)...)
			}
		}
		is := issue{kind: unknownColumn, name: col.name, tok: col.tok, ctx: referenced}
		is.fix = closest(col.name, candidates)
		issues = append(issues, is)
	}
	return issues
}

func columnIn(cat *catalog.Catalog, tables []string, column string) bool {
	for _, t := range tables {
		if cat.HasColumn(t, column) {
			return true
		}
	}
	return false
}

func canonicalTable(cat *catalog.Catalog, name string) string {
	for _, t := range cat.Tables() {
		if strings.EqualFold(t, name) {
			return t
		}
	}
	return name
}

// closest returns the only candidate within the edit budget, or "" when
// there are none or several.
func closest(name string, candidates []string) string {
	target := strings.ToLower(name)
	found := ""
	seen := map[string]bool{}
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if seen[lc] {
			continue
		}
		seen[lc] = true
		d := fuzzy.LevenshteinDistance(target, lc)
		if d > maxEditDistance {
			continue
		}
		longest := max(len([]rune(target)), len([]rune(lc)))
		if longest == 0 || 1-float64(d)/float64(longest) < minSimilarity {
			continue
		}
		if found != "" {
			return ""
		}
		found = c
	}
	return found
}
