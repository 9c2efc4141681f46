// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package summarize turns the outcome of a run into the answer shown to the
// user.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/sqlcheck"
	"querypilot/cli/internal/sqlexec"
)

const (
	// MaxPromptRows bounds the rows shown to the model.
	MaxPromptRows = 50
	// fallbackRows bounds the rows inlined when the model is unavailable.
	fallbackRows = 5

	MsgNoRows     = "No matching records were found."
	MsgExecFailed = "The query could not be run against the database."
	msgInvalid    = "I couldn't build a valid query for that question: "
)

// Input is what the summarizer reads from a finished run.
type Input struct {
	Question string
	// Rejection is the question validator's message, set when the run was
	// stopped before any SQL was written.
	Rejection        string
	ValidationStatus sqlcheck.Status
	ValidationError  string
	SQL              string
	Execution        sqlexec.Result
}

// Summarizer writes the final answer.
type Summarizer struct {
	LLM    llm.Completer
	Logger *slog.Logger
}

// SystemPrompt instructs the model to answer from the rows only.
const SystemPrompt = `You are the results analyst of a natural-language database assistant.
Answer the user's question in a few sentences using only the query result provided.
Mention concrete numbers and names from the result. Do not invent data.
If the result only partly answers the question, say what it does show.
Reply in plain text, no SQL and no markdown tables.`

// Summarize always returns a message; model failures fall back to a
// deterministic rendering of the rows.
func (s *Summarizer) Summarize(ctx context.Context, in Input) string {
	switch {
	case in.Rejection != "":
		return in.Rejection
	case in.ValidationStatus == sqlcheck.StatusInvalid:
		reason := in.ValidationError
		if reason == "" {
			reason = "the generated SQL was rejected"
		}
		return msgInvalid + reason
	case in.Execution.Status == "" && in.SQL == "":
		return msgInvalid + "no SQL was generated"
	case in.Execution.Status != sqlexec.StatusSuccess:
		return failure(in.Execution.Error)
	case len(in.Execution.Rows) == 0:
		return MsgNoRows
	}

	log := s.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if s.LLM != nil {
		user := fmt.Sprintf("Question: %s\n\nSQL:\n%s\n\nResult:\n%s", in.Question, in.SQL, FormatResult(in.Execution))
		answer, err := s.LLM.Complete(ctx, SystemPrompt, user)
		if err == nil && strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer)
		}
		if err != nil {
			log.Warn("summary unavailable, using plain rendering", "error", logging.Mask(err.Error()))
		}
	}
	return Fallback(in.Execution)
}

func failure(reason string) string {
	reason = firstLine(logging.Mask(reason))
	if reason == "" {
		return MsgExecFailed
	}
	return MsgExecFailed + " Reason: " + reason
}

// Fallback renders a result without the model.
func Fallback(res sqlexec.Result) string {
	n := len(res.Rows)
	noun := "records"
	if n == 1 {
		noun = "record"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s.", n, noun)
	for i, row := range res.Rows {
		if i == fallbackRows {
			fmt.Fprintf(&b, "\n... and %d more", n-fallbackRows)
			break
		}
		parts := make([]string, 0, len(row.Values))
		for j, v := range row.Values {
			col := ""
			if j < len(res.Columns) {
				col = res.Columns[j]
			}
			parts = append(parts, col+": "+FormatValue(v))
		}
		b.WriteString("\n- " + strings.Join(parts, ", "))
	}
	return b.String()
}

// FormatResult renders rows for the model, capped at MaxPromptRows.
func FormatResult(res sqlexec.Result) string {
	if len(res.Rows) == 0 {
		return "Query returned no results."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(res.Columns, ", "))
	fmt.Fprintf(&b, "Rows (%d total):\n", len(res.Rows))
	for i, row := range res.Rows {
		if i == MaxPromptRows {
			fmt.Fprintf(&b, "... and %d more rows\n", len(res.Rows)-MaxPromptRows)
			break
		}
		vals := make([]string, len(row.Values))
		for j, v := range row.Values {
			vals[j] = FormatValue(v)
		}
		b.WriteString(strings.Join(vals, " | ") + "\n")
	}
	return b.String()
}

// FormatValue renders one cell: floats to two decimals, whole floats without
// any, long text truncated.
func FormatValue(v any) string {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case float32:
		if val == float32(int32(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return ""
	default:
		s := fmt.Sprintf("%v", v)
		if utf8.RuneCountInString(s) > 100 {
			s = string([]rune(s)[:97]) + "..."
		}
		return s
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
