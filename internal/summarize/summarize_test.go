package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"querypilot/cli/internal/llm/llmtest"
	"querypilot/cli/internal/sqlcheck"
	"querypilot/cli/internal/sqlexec"
)

const marker = "results analyst"

func result(cols []string, rows ...[]any) sqlexec.Result {
	res := sqlexec.Result{Columns: cols, Status: sqlexec.StatusSuccess}
	for _, r := range rows {
		res.Rows = append(res.Rows, sqlexec.Row{Columns: cols, Values: r})
	}
	return res
}

func TestSummarize_Paths(t *testing.T) {
	ok := result([]string{"city", "total"}, []any{"Delhi", 30.0})
	tests := []struct {
		name string
		in   Input
		want string
	}{
		{
			name: "rejection passes through",
			in:   Input{Rejection: "Please enter a question."},
			want: "Please enter a question.",
		},
		{
			name: "invalid sql",
			in:   Input{ValidationStatus: sqlcheck.StatusInvalid, ValidationError: `unknown column "revenue"`},
			want: `I couldn't build a valid query for that question: unknown column "revenue"`,
		},
		{
			name: "nothing generated",
			in:   Input{},
			want: "I couldn't build a valid query for that question: no SQL was generated",
		},
		{
			name: "execution failure is masked",
			in: Input{SQL: "SELECT 1", ValidationStatus: sqlcheck.StatusValid, Execution: sqlexec.Result{
				Status: sqlexec.StatusFailure,
				Error:  "dial postgres://app:s3cret@db/sales failed\ngoroutine 1 [running]",
			}},
			want: "The query could not be run against the database. Reason: dial postgres://*:*@db/sales failed",
		},
		{
			name: "no rows",
			in:   Input{SQL: "SELECT 1", ValidationStatus: sqlcheck.StatusValid, Execution: result([]string{"city"})},
			want: MsgNoRows,
		},
		{
			name: "model answer",
			in:   Input{SQL: "SELECT 1", ValidationStatus: sqlcheck.StatusCorrected, Execution: ok},
			want: "Delhi shipped 30 units.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Summarizer{LLM: llmtest.New(llmtest.Reply(marker, "  Delhi shipped 30 units.\n"))}
			assert.Equal(t, tt.want, s.Summarize(context.Background(), tt.in))
		})
	}
}

func TestSummarize_OnlySuccessCallsModel(t *testing.T) {
	script := llmtest.New(llmtest.Reply(marker, "answer"))
	s := &Summarizer{LLM: script}

	s.Summarize(context.Background(), Input{Rejection: "nope"})
	s.Summarize(context.Background(), Input{ValidationStatus: sqlcheck.StatusInvalid})
	assert.Zero(t, script.CallsTo(marker))

	s.Summarize(context.Background(), Input{
		Question: "Sales of Delhi", SQL: "SELECT city FROM tbl_shipment",
		Execution: result([]string{"city"}, []any{"Delhi"}),
	})
	calls := script.Calls()
	assert.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "Question: Sales of Delhi")
	assert.Contains(t, calls[0].User, "Rows (1 total):")
}

func TestSummarize_FallbackOnModelFailure(t *testing.T) {
	for name, s := range map[string]*Summarizer{
		"error": {LLM: llmtest.New(llmtest.Fail(marker, errors.New("overloaded")))},
		"empty": {LLM: llmtest.New(llmtest.Reply(marker, "   "))},
		"none":  {},
	} {
		t.Run(name, func(t *testing.T) {
			res := result([]string{"product_name", "qty"},
				[]any{"Bhujia", 12.5}, []any{"Aloo Bhujia", 4.0}, []any{"Moong Dal", nil})

			got := s.Summarize(context.Background(), Input{SQL: "SELECT 1", Execution: res})

			assert.Equal(t, "Found 3 records.\n- product_name: Bhujia, qty: 12.50\n- product_name: Aloo Bhujia, qty: 4\n- product_name: Moong Dal, qty: ", got)
		})
	}
}

func TestFallback_Truncates(t *testing.T) {
	var rows [][]any
	for i := range 8 {
		rows = append(rows, []any{int64(i)})
	}
	got := Fallback(result([]string{"n"}, rows...))

	assert.True(t, strings.HasPrefix(got, "Found 8 records."))
	assert.True(t, strings.HasSuffix(got, "... and 3 more"))
	assert.Equal(t, "Found 1 record.\n- n: 1", Fallback(result([]string{"n"}, []any{int64(1)})))
}

func TestFormatResult_CapsRows(t *testing.T) {
	var rows [][]any
	for i := range MaxPromptRows + 7 {
		rows = append(rows, []any{fmt.Sprintf("r%d", i), float64(i) + 0.25})
	}
	got := FormatResult(result([]string{"name", "v"}, rows...))

	assert.Contains(t, got, "Columns: name, v\n")
	assert.Contains(t, got, fmt.Sprintf("Rows (%d total):", MaxPromptRows+7))
	assert.Contains(t, got, "r0 | 0.25\n")
	assert.NotContains(t, got, fmt.Sprintf("r%d |", MaxPromptRows))
	assert.Contains(t, got, "... and 7 more rows")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "3", FormatValue(3.0))
	assert.Equal(t, "3.14", FormatValue(3.14159))
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "Delhi", FormatValue("Delhi"))
	assert.Len(t, FormatValue(strings.Repeat("x", 150)), 100)

	long := FormatValue(strings.Repeat("दिल्ली ", 30))
	assert.True(t, utf8.ValidString(long), long)
	assert.Equal(t, 100, utf8.RuneCountInString(long))
	assert.True(t, strings.HasSuffix(long, "..."))
}
