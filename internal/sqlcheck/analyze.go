// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlcheck

import "strings"

// keywords are words that never name a column. Type and date-part names are
// included because they show up bare inside CAST and EXTRACT.
var keywords = wordSet(`
	select from where group by having order limit offset as on join inner left
	right full outer cross natural using and or not in is null like ilike glob
	regexp between exists case when then else end distinct all any some union
	intersect except asc desc nulls first last with recursive true false
	interval date time timestamp timestamptz zone at current_date current_time
	current_timestamp localtime localtimestamp over partition filter within
	rows range groups preceding following unbounded current row fetch next
	only lateral cast extract year month day hour minute second week quarter
	epoch dow doy isodow escape similar collate values isnull notnull window
	ties both leading trailing for text varchar char integer int bigint
	smallint numeric decimal real double precision boolean float
`)

// writeKeywords turn a query into a write or DDL statement.
var writeKeywords = wordSet(`
	insert update delete drop alter create truncate grant revoke copy merge
	call into attach detach vacuum reindex
`)

// clauseKeywords change what the next identifiers in a query mean.
var clauseKeywords = wordSet(`
	select where group having order limit offset on using union intersect
	except window returning values
`)

func wordSet(s string) map[string]bool {
	m := map[string]bool{}
	for _, w := range strings.Fields(s) {
		m[w] = true
	}
	return m
}

func isKeyword(t token) bool { return t.kind == tIdent && keywords[strings.ToLower(t.text)] }

type tableRef struct {
	name  string // as written, without schema
	tok   int    // index of the name token
	alias string
}

type colRef struct {
	qualifier string
	name      string
	tok       int
}

// analysis is a flat view of one statement: the relations it reads and the
// identifiers it uses. Scopes are merged, which over-accepts a column from a
// sibling subquery but never rejects a correct query.
type analysis struct {
	tables        []tableRef
	opaque        map[string]bool // CTE names, derived-table and function aliases
	outputAliases map[string]bool
	columns       []colRef
}

type frame struct {
	query   bool
	clause  string
	derived bool // closing paren may be followed by an alias
}

func analyze(toks []token) *analysis {
	a := &analysis{opaque: map[string]bool{}, outputAliases: map[string]bool{}}
	stack := []frame{{query: true}}
	expectTable := false

	at := func(i int) token {
		if i >= 0 && i < len(toks) {
			return toks[i]
		}
		return token{kind: tSymbol}
	}
	top := func() *frame { return &stack[len(stack)-1] }

	// readAlias consumes an optional "[AS] alias" at i and returns it.
	readAlias := func(i int) (string, int) {
		t := at(i)
		if t.word("as") {
			if n := at(i + 1); n.ident() {
				return n.text, i + 2
			}
			return "", i + 1
		}
		if t.kind == tQuoted || (t.kind == tIdent && !isKeyword(t) && !writeKeywords[strings.ToLower(t.text)]) {
			return t.text, i + 1
		}
		return "", i
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]

		if expectTable {
			if t.word("lateral") || t.word("only") {
				continue
			}
			expectTable = false
			if t.ident() && !isKeyword(t) {
				nameIdx := i
				if at(i+1).is(".") && at(i+2).ident() {
					nameIdx = i + 2
				}
				if at(nameIdx + 1).is("(") {
					// Table function such as generate_series(...).
					stack = append(stack, frame{derived: true})
					i = nameIdx + 1
					continue
				}
				ref := tableRef{name: toks[nameIdx].text, tok: nameIdx}
				alias, next := readAlias(nameIdx + 1)
				ref.alias = alias
				a.tables = append(a.tables, ref)
				i = next - 1
				continue
			}
			if !t.is("(") {
				// Not a relation; let the loop classify the token normally.
				i--
				continue
			}
			stack = append(stack, frame{query: startsQuery(at(i + 1)), derived: true})
			continue
		}

		switch {
		case t.is("("):
			stack = append(stack, frame{query: startsQuery(at(i + 1))})
			continue

		case t.is(")"):
			if len(stack) > 1 {
				closed := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if closed.derived {
					if alias, next := readAlias(i + 1); alias != "" {
						a.opaque[strings.ToLower(alias)] = true
						a.skipColumnList(toks, next)
						i = next - 1
					}
				}
			}
			continue

		case t.is(","):
			if f := top(); f.query && f.clause == "from" {
				expectTable = true
			}
			continue

		case t.kind != tIdent && t.kind != tQuoted:
			continue
		}

		prev, next := at(i-1), at(i+1)
		lower := strings.ToLower(t.text)

		if t.kind == tIdent && keywords[lower] {
			f := top()
			switch {
			case lower == "from" && f.query && !at(i-1).word("distinct"):
				f.clause = "from"
				expectTable = true
			case lower == "join":
				f.clause = "join"
				expectTable = true
			case clauseKeywords[lower]:
				f.clause = lower
			}
			continue
		}

		switch {
		case next.word("as") && at(i+2).is("("):
			// CTE: name AS (...)
			a.opaque[lower] = true
			i++
		case next.is("(") && cteColumnList(toks, i+1):
			// CTE with a column list: name (a, b) AS (...)
			a.opaque[lower] = true
			end := matchParen(toks, i+1)
			for _, c := range toks[i+2 : end] {
				if c.ident() {
					a.outputAliases[strings.ToLower(c.text)] = true
				}
			}
			i = end + 1
		case next.is("(") && t.kind == tIdent:
			// function call
		case prev.word("as"):
			a.outputAliases[lower] = true
		case prev.is("::"):
			// type name
		case next.kind == tString && t.kind == tIdent:
			// typed literal
		case next.is("."):
			col := at(i + 2)
			if col.ident() {
				a.columns = append(a.columns, colRef{qualifier: t.text, name: col.text, tok: i + 2})
			}
			i += 2
		case endsExpression(prev):
			// implicit output alias: SUM(x) total
			a.outputAliases[lower] = true
		default:
			a.columns = append(a.columns, colRef{name: t.text, tok: i})
		}
	}
	return a
}

// skipColumnList records a derived-table column list "alias(a, b)" as output
// aliases.
func (a *analysis) skipColumnList(toks []token, i int) {
	if i >= len(toks) || !toks[i].is("(") {
		return
	}
	end := matchParen(toks, i)
	for _, c := range toks[i+1 : end] {
		if c.ident() {
			a.outputAliases[strings.ToLower(c.text)] = true
		}
	}
}

func startsQuery(t token) bool {
	return t.word("select") || t.word("with") || t.word("values")
}

// endsExpression reports whether a token can end an expression, making a
// following bare word an alias.
func endsExpression(t token) bool {
	switch t.kind {
	case tNumber, tString, tQuoted:
		return true
	case tIdent:
		return !isKeyword(t) || t.word("end")
	}
	return t.is(")")
}

// matchParen returns the index of the paren closing the one at open, or
// len(toks)-1 when unbalanced.
func matchParen(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch {
		case toks[i].is("("):
			depth++
		case toks[i].is(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(toks) - 1
}

func cteColumnList(toks []token, open int) bool {
	end := matchParen(toks, open)
	if end+2 >= len(toks) || !toks[end].is(")") {
		return false
	}
	return toks[end+1].word("as") && toks[end+2].is("(")
}
