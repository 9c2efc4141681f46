// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlgen asks the model for a SQL statement that answers a resolved
// question. The output is a candidate only; sqlcheck decides whether it runs.
package sqlgen

import (
	"context"
	"fmt"
	"strings"

	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/resolver"
)

// Request is everything the generator needs.
type Request struct {
	Question        string
	Resolved        resolver.Resolved
	Bindings        []resolver.Binding
	AnnotatedSchema string
	Dialect         string
	MaxRows         int
}

// Generated is the model's answer.
type Generated struct {
	SQL         string
	Explanation string
}

// Generator produces candidate SQL.
type Generator struct {
	LLM llm.Completer
}

// SystemPrompt is the SQL-writing instruction; the schema is appended.
const SystemPrompt = `You are the SQL writer of a natural-language database assistant.
Write exactly one read-only SQL query (SELECT or WITH ... SELECT) that answers the question.

Rules:
- Use only the tables and columns listed in the schema below.
- When filtering on a bound entity, use the exact value given, as a quoted string literal.
- Turn time expressions into date filters on the appropriate date column.
- Never modify data. Never return more than one statement.

Reply with JSON only:
{"sql": "<the query>", "explanation": "<one sentence>"}`

// Generate returns the candidate SQL. A model failure is fatal for the run;
// an unusable answer yields an empty candidate that validation will reject.
func (g *Generator) Generate(ctx context.Context, req Request) (Generated, error) {
	system := SystemPrompt
	if req.Dialect != "" {
		system += "\n\nSQL dialect: " + req.Dialect
	}
	system += "\n\n## Database Schema\n\n```\n" + req.AnnotatedSchema + "```"

	resp, err := g.LLM.Complete(ctx, system, userPrompt(req))
	if err != nil {
		if qerrors.KindOf(err) == qerrors.LLMUnavailable {
			return Generated{}, err
		}
		return Generated{}, qerrors.Wrap(qerrors.LLMUnavailable, "sql generation", err)
	}
	return Parse(resp), nil
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\nIntent: %s\n", req.Question, req.Resolved.Intent)

	var bound, flagged, times []string
	for _, bd := range req.Bindings {
		switch bd.How {
		case resolver.HowExact, resolver.HowFuzzy, resolver.HowHuman:
			bound = append(bound, fmt.Sprintf("- %q means %s = %s", bd.Mention, bd.Table+"."+bd.Column, quote(bd.Value)))
		case resolver.HowFlagged:
			flagged = append(flagged, fmt.Sprintf("- %s (not found in the sampled data; match it loosely if at all)", quote(bd.Value)))
		case resolver.HowVerbatim:
			times = append(times, "- "+bd.Value)
		}
	}
	if len(bound) > 0 {
		b.WriteString("\nBound entities:\n" + strings.Join(bound, "\n") + "\n")
	}
	if len(flagged) > 0 {
		b.WriteString("\nUnmatched terms:\n" + strings.Join(flagged, "\n") + "\n")
	}
	if len(times) > 0 {
		b.WriteString("\nTime expressions:\n" + strings.Join(times, "\n") + "\n")
	}
	if req.MaxRows > 0 {
		fmt.Fprintf(&b, "\nReturn at most %d rows.\n", req.MaxRows)
	}
	return b.String()
}

func quote(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

// Parse extracts SQL from a model response: JSON first, then a fenced code
// block, then the bare text if it looks like SQL.
func Parse(response string) Generated {
	response = strings.TrimSpace(response)

	var parsed struct {
		SQL         string `json:"sql"`
		Explanation string `json:"explanation"`
	}
	if err := llm.DecodeJSON(response, &parsed); err == nil && strings.TrimSpace(parsed.SQL) != "" {
		return Generated{SQL: clean(parsed.SQL), Explanation: parsed.Explanation}
	}
	if sql := fromCodeBlock(response); sql != "" {
		return Generated{SQL: sql}
	}
	if looksLikeSQL(response) {
		return Generated{SQL: clean(response)}
	}
	return Generated{}
}

func fromCodeBlock(response string) string {
	if start := strings.Index(response, "```sql"); start != -1 {
		start += len("```sql")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return clean(response[start : start+end])
		}
	}
	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			if content := strings.TrimSpace(response[start : start+end]); looksLikeSQL(content) {
				return clean(content)
			}
		}
	}
	return ""
}

func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, kw := range []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// clean trims whitespace and a trailing semicolon.
func clean(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return strings.TrimSpace(sql)
}
