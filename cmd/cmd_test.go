package cmd

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/cli/internal/database"
	"querypilot/cli/internal/database/dbtest"
	"querypilot/cli/internal/dsn"
	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/llm/llmtest"
	"querypilot/cli/internal/pipeline"
)

type nopClose struct{ database.Conn }

func (nopClose) Close() {}

func TestPickSample(t *testing.T) {
	assert.Equal(t, sampleQuestions[2], pickSample("3"))
	assert.Equal(t, "7", pickSample("7"))
	assert.Equal(t, "top products", pickSample("top products"))
}

func TestPresent(t *testing.T) {
	err := qerrors.New(qerrors.InvalidConfig, "no database configured")
	assert.Equal(t, "Configuration problem: no database configured", present(err))

	err = qerrors.Wrap(qerrors.DatabaseUnavailable, "open", assert.AnError)
	assert.Equal(t, pipeline.MsgUnavailable, present(err))

	assert.True(t, strings.HasPrefix(present(assert.AnError), "Error processing query: "))
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "OS keychain", sourceLabel(dsn.SourceKeychain))
	assert.Equal(t, "environment variable", sourceLabel(dsn.SourceEnv))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, []string{"city", "total"}, [][]any{{"Delhi", int64(220)}, {"Dehri", nil}})
	out := buf.String()
	assert.Contains(t, out, "city")
	assert.Contains(t, out, "Delhi")
	assert.Contains(t, out, "220")
	assert.Contains(t, out, "2 row(s)")
}

func TestAskLocalReadsClarificationChoice(t *testing.T) {
	db := dbtest.Open(t)
	script := llmtest.New(
		llmtest.Reply("gatekeeper", `{"classification": "data_question"}`),
		llmtest.Reply("entity extractor", `{"intent": "sales_aggregation", "mentions": [{"text": "Dehi", "kind": "location"}]}`),
		llmtest.Reply("SQL writer", `{"sql": "SELECT SUM(quantity) AS total FROM tbl_shipment WHERE city = 'Dehri'"}`),
		llmtest.Reply("results analyst", "Dehri shipped 40 units."),
	)
	a := pipeline.Assistant{
		Open:   func(context.Context) (database.Conn, error) { return nopClose{db}, nil },
		Tables: dbtest.Tables,
		LLM:    script,
	}

	saved := stdin
	stdin = bufio.NewReader(strings.NewReader("2\n"))
	t.Cleanup(func() { stdin = saved })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess := pipeline.NewSession(a)
	require.NoError(t, askLocal(ctx, sess, "total sales in Dehi", displayOptions{rows: true}))

	st, err := sess.Result()
	require.NoError(t, err)
	assert.Equal(t, "Dehri shipped 40 units.", st.FinalOutput)
	assert.Contains(t, st.ValidatedSQL, "'Dehri'")
}

func TestAskLocalReportsUnavailableDatabase(t *testing.T) {
	a := pipeline.Assistant{
		Open: func(context.Context) (database.Conn, error) {
			return nil, qerrors.New(qerrors.DatabaseUnavailable, "refused")
		},
		Tables: dbtest.Tables,
		LLM:    llmtest.New(),
	}
	sess := pipeline.NewSession(a)
	err := askLocal(context.Background(), sess, "total sales", displayOptions{})
	assert.ErrorIs(t, err, errReported)

	st, _ := sess.Result()
	require.NotNil(t, st)
	assert.Equal(t, pipeline.MsgUnavailable, st.FinalOutput)
}
