package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/resolver"
	"querypilot/cli/internal/sqlcheck"
	"querypilot/cli/internal/sqlexec"
)

func TestApplyNeverClears(t *testing.T) {
	st := &State{UserQuery: "q"}
	st.Apply(Update{RouteDecision: RouteEntityResolver, Trace: []string{"a"}})
	st.Apply(Update{
		Resolved:        resolver.Resolved{Intent: "sales", Entities: []string{"Delhi"}},
		AnnotatedSchema: "TABLE t",
		Trace:           []string{"b"},
	})
	st.Apply(Update{SQLCandidate: "SELECT 1"})
	st.Apply(Update{})

	want := &State{
		UserQuery:       "q",
		RouteDecision:   RouteEntityResolver,
		Resolved:        resolver.Resolved{Intent: "sales", Entities: []string{"Delhi"}},
		AnnotatedSchema: "TABLE t",
		SQLCandidate:    "SELECT 1",
		ReasoningTrace:  []string{"a", "b"},
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestNext(t *testing.T) {
	proceed := &State{RouteDecision: RouteEntityResolver}
	reject := &State{RouteDecision: RouteSummarizedResults}
	unset := &State{}

	assert.Equal(t, NodeEntityResolver, Next(NodeQuestionValidator, proceed))
	assert.Equal(t, NodeSummarizedResults, Next(NodeQuestionValidator, reject))
	assert.Equal(t, NodeSummarizedResults, Next(NodeQuestionValidator, unset))

	var path []Node
	for n := NodeEntityResolver; n != NodeEnd; n = Next(n, proceed) {
		path = append(path, n)
	}
	assert.Equal(t, []Node{NodeEntityResolver, NodeSQLGenerator, NodeValidatorSQL, NodeExecutorSQL, NodeSummarizedResults}, path)
}

func TestGraphStopsOnStageError(t *testing.T) {
	var visited []Node
	stage := func(n Node, u Update, err error) Stage {
		return func(context.Context, State) (Update, error) {
			visited = append(visited, n)
			return u, err
		}
	}
	boom := qerrors.New(qerrors.LLMUnavailable, "down")
	g := &Graph{Stages: map[Node]Stage{
		NodeQuestionValidator: stage(NodeQuestionValidator, Update{RouteDecision: RouteEntityResolver}, nil),
		NodeEntityResolver:    stage(NodeEntityResolver, Update{Trace: []string{"entity_resolver: partial"}}, boom),
		NodeSummarizedResults: stage(NodeSummarizedResults, Update{}, nil),
	}}

	st, err := g.Run(context.Background(), &State{UserQuery: "q"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Node{NodeQuestionValidator, NodeEntityResolver}, visited)
	assert.Equal(t, []string{"entity_resolver: partial"}, st.ReasoningTrace)
}

func TestGraphMissingStage(t *testing.T) {
	_, err := (&Graph{}).Run(context.Background(), &State{})
	assert.Error(t, err)
}

func TestGraphHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Graph{}).Run(ctx, &State{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, MsgUnavailable, UserMessage(qerrors.New(qerrors.CatalogUnavailable, "x")))
	assert.Equal(t, MsgModelUnavailable, UserMessage(qerrors.New(qerrors.LLMUnavailable, "x")))
	assert.Equal(t, MsgClarifyTimeout, UserMessage(qerrors.New(qerrors.ClarificationTimeout, "x")))
	assert.Equal(t, "Error processing query: dial postgres://*:*@db failed",
		UserMessage(errors.New("dial postgres://u:p@db failed")))
}

func TestDetails(t *testing.T) {
	st := &State{
		RouteDecision:    RouteEntityResolver,
		Resolved:         resolver.Resolved{Intent: "sales_aggregation", Entities: []string{"Delhi", "last 3 months"}},
		ValidationStatus: sqlcheck.StatusValid,
		ExecutionStatus:  sqlexec.StatusSuccess,
		ExecutionResult: sqlexec.Result{Status: sqlexec.StatusSuccess, Rows: []sqlexec.Row{
			{Columns: []string{"n"}, Values: []any{1}}, {Columns: []string{"n"}, Values: []any{2}},
		}},
	}
	assert.Equal(t, "Validation: SQL query validated successfully\n"+
		"Execution: Successfully retrieved 2 records\n"+
		"Route: entity_resolver\n"+
		"Intent: sales_aggregation\n"+
		"Entities: Delhi, last 3 months", Details(st))

	rejected := &State{RouteDecision: RouteSummarizedResults}
	assert.Equal(t, "Validation: not run\nExecution: not run\nRoute: summarized_results", Details(rejected))

	invalid := &State{
		RouteDecision:    RouteEntityResolver,
		ValidationStatus: sqlcheck.StatusInvalid,
		ValidationError:  "unknown table \"x\"",
		ExecutionStatus:  sqlexec.StatusFailure,
		ExecutionError:   "query was not executed: unknown table \"x\"",
	}
	details := Details(invalid)
	require.Contains(t, details, "Validation: invalid (unknown table \"x\")")
	assert.Contains(t, details, "Execution: query was not executed")
}
