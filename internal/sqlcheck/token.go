// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlcheck

import (
	"errors"
	"strings"
)

type tokKind int

const (
	tIdent  tokKind = iota // bare word, keyword or identifier
	tQuoted                // "identifier" or `identifier`
	tString                // 'literal' or $$literal$$
	tNumber
	tSymbol
)

type token struct {
	kind       tokKind
	text       string // identifier value without quotes; raw text otherwise
	start, end int    // byte span in the source
}

func (t token) is(sym string) bool { return t.kind == tSymbol && t.text == sym }

// word reports whether t is the unquoted word w, ignoring case.
func (t token) word(w string) bool { return t.kind == tIdent && strings.EqualFold(t.text, w) }

func (t token) ident() bool { return t.kind == tIdent || t.kind == tQuoted }

var (
	errUnterminatedString = errors.New("unbalanced quotes: unterminated string literal")
	errUnterminatedIdent  = errors.New("unbalanced quotes: unterminated quoted identifier")
	errUnterminatedBlock  = errors.New("unterminated block comment")
)

var twoCharSymbols = []string{"::", "<=", ">=", "<>", "!=", "||", "->"}

// tokenize splits sql into tokens, dropping whitespace and comments.
func tokenize(sql string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++

		case strings.HasPrefix(sql[i:], "--"):
			if nl := strings.IndexByte(sql[i:], '\n'); nl >= 0 {
				i += nl + 1
			} else {
				i = len(sql)
			}

		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return nil, errUnterminatedBlock
			}
			i += 2 + end + 2

		case c == '\'':
			j, ok := closeQuote(sql, i, '\'')
			if !ok {
				return nil, errUnterminatedString
			}
			toks = append(toks, token{kind: tString, text: sql[i:j], start: i, end: j})
			i = j

		case c == '"' || c == '`':
			j, ok := closeQuote(sql, i, c)
			if !ok {
				return nil, errUnterminatedIdent
			}
			inner := sql[i+1 : j-1]
			inner = strings.ReplaceAll(inner, string([]byte{c, c}), string(c))
			toks = append(toks, token{kind: tQuoted, text: inner, start: i, end: j})
			i = j

		case c == '$' && i+1 < len(sql) && (sql[i+1] == '$' || isIdentStart(sql[i+1])):
			if tag, ok := dollarTag(sql[i:]); ok {
				end := strings.Index(sql[i+len(tag):], tag)
				if end < 0 {
					return nil, errUnterminatedString
				}
				j := i + len(tag) + end + len(tag)
				toks = append(toks, token{kind: tString, text: sql[i:j], start: i, end: j})
				i = j
				continue
			}
			toks = append(toks, token{kind: tSymbol, text: "$", start: i, end: i + 1})
			i++

		case isDigit(c) || (c == '.' && i+1 < len(sql) && isDigit(sql[i+1])):
			j := i
			for j < len(sql) && (isDigit(sql[j]) || sql[j] == '.' ||
				((sql[j] == 'e' || sql[j] == 'E') && j+1 < len(sql) && (isDigit(sql[j+1]) || sql[j+1] == '-' || sql[j+1] == '+'))) {
				if sql[j] == 'e' || sql[j] == 'E' {
					j++
				}
				j++
			}
			toks = append(toks, token{kind: tNumber, text: sql[i:j], start: i, end: j})
			i = j

		case isIdentStart(c):
			j := i + 1
			for j < len(sql) && isIdentPart(sql[j]) {
				j++
			}
			toks = append(toks, token{kind: tIdent, text: sql[i:j], start: i, end: j})
			i = j

		default:
			sym := sql[i : i+1]
			for _, s := range twoCharSymbols {
				if strings.HasPrefix(sql[i:], s) {
					sym = s
					break
				}
			}
			toks = append(toks, token{kind: tSymbol, text: sym, start: i, end: i + len(sym)})
			i += len(sym)
		}
	}
	return toks, nil
}

// closeQuote returns the index just past the quote closing the one at i.
// A doubled quote is an escaped quote.
func closeQuote(s string, i int, q byte) (int, bool) {
	for j := i + 1; j < len(s); j++ {
		if s[j] == q {
			if j+1 < len(s) && s[j+1] == q {
				j++
				continue
			}
			return j + 1, true
		}
	}
	return 0, false
}

// dollarTag reads a $tag$ opener.
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		if s[j] == '$' {
			return s[:j+1], true
		}
		if !isIdentPart(s[j]) {
			return "", false
		}
	}
	return "", false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}
func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) || c == '$' }
