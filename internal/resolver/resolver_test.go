package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querypilot/cli/internal/catalog"
	"querypilot/cli/internal/clarify"
	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/llm/llmtest"
)

func fixtureCatalog() *catalog.Catalog {
	return catalog.New(
		map[string][]string{
			"tbl_product_master": {"product_id", "product_name", "category"},
			"tbl_shipment":       {"shipment_id", "product_id", "city", "quantity", "shipped_on"},
		},
		map[string]map[string][]string{
			"tbl_product_master": {
				"product_name": {"Bhujia", "Aloo Bhujia", "Moong Dal", "Soan Papdi"},
				"category":     {"Namkeen", "Sweets"},
			},
			"tbl_shipment": {"city": {"Delhi", "Dehri", "Mumbai", "Kolkata"}},
		},
	)
}

// scriptedPrompter answers from a list and records every request.
type scriptedPrompter struct {
	answers  []string
	err      error
	requests []clarify.Request
}

func (p *scriptedPrompter) Ask(ctx context.Context, req clarify.Request) (string, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func extraction(json string) *llmtest.Script {
	return llmtest.New(llmtest.Reply("entity extractor", json))
}

func TestUnambiguousMatchNeverAsks(t *testing.T) {
	p := &scriptedPrompter{}
	r := &Resolver{
		LLM:      extraction(`{"intent": "product_lookup", "mentions": [{"text": "Bhujia", "kind": "product"}]}`),
		Prompter: p,
		Policy:   DefaultPolicy(),
	}

	res, err := r.Resolve(context.Background(), "Show me all products with Bhujia", fixtureCatalog())
	require.NoError(t, err)

	assert.Empty(t, p.requests)
	assert.Equal(t, Resolved{Intent: "product_lookup", Entities: []string{"Bhujia"}}, res.Resolved)
	require.Len(t, res.Bindings, 1)
	assert.Equal(t, Binding{
		Mention: "Bhujia", Kind: KindProduct, Value: "Bhujia",
		Table: "tbl_product_master", Column: "product_name", How: HowExact,
	}, res.Bindings[0])
	assert.Contains(t, res.AnnotatedSchema, "<- matches 'Bhujia'")
}

func TestAmbiguousMentionAsksThroughChannel(t *testing.T) {
	ch := clarify.NewChannel()
	r := &Resolver{
		LLM:      extraction(`{"intent": "sales_aggregation", "mentions": [{"text": "Dehi", "kind": "location"}, {"text": "last 3 months", "kind": "time"}]}`),
		Prompter: ch,
		Policy:   DefaultPolicy(),
	}

	go func() {
		req := <-ch.Notify()
		assert.Equal(t, `Which location did you mean by "Dehi"?`, req.Prompt)
		assert.Equal(t, []string{"1. Delhi (tbl_shipment.city)", "2. Dehri (tbl_shipment.city)"}, req.Options)
		assert.NoError(t, ch.Submit("1"))
	}()

	res, err := r.Resolve(context.Background(), "Sales of Dehi in last 3 months", fixtureCatalog())
	require.NoError(t, err)

	assert.Equal(t, []string{"Delhi", "last 3 months"}, res.Resolved.Entities)
	assert.Equal(t, HowHuman, res.Bindings[0].How)
	assert.Equal(t, HowVerbatim, res.Bindings[1].How)
	assert.False(t, ch.Waiting())
}

func TestLabelAnswerSelectsOption(t *testing.T) {
	p := &scriptedPrompter{answers: []string{"2. Dehri (tbl_shipment.city)"}}
	r := &Resolver{
		LLM:      extraction(`{"intent": "sales", "mentions": [{"text": "Dehi", "kind": "location"}]}`),
		Prompter: p,
		Policy:   DefaultPolicy(),
	}
	res, err := r.Resolve(context.Background(), "Dehi sales", fixtureCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"Dehri"}, res.Resolved.Entities)
}

func TestUnresolvedMentionIsFlaggedOrIgnored(t *testing.T) {
	for _, tt := range []struct {
		answer   string
		how      How
		entities []string
	}{
		{"1", HowFlagged, []string{"Takatak"}},
		{"2", HowIgnored, nil},
	} {
		t.Run(tt.answer, func(t *testing.T) {
			p := &scriptedPrompter{answers: []string{tt.answer}}
			r := &Resolver{
				LLM:      extraction(`{"intent": "sales", "mentions": [{"text": "Takatak", "kind": "product"}]}`),
				Prompter: p,
				Policy:   DefaultPolicy(),
			}
			res, err := r.Resolve(context.Background(), "Takatak sales in last two months", fixtureCatalog())
			require.NoError(t, err)

			require.Len(t, p.requests, 1)
			assert.Equal(t, []string{`1. Keep "Takatak" as typed`, "2. Ignore this term"}, p.requests[0].Options)
			assert.Equal(t, tt.how, res.Bindings[0].How)
			assert.Equal(t, tt.entities, res.Resolved.Entities)
			assert.Empty(t, res.Bindings[0].Table)
		})
	}
}

func TestSingleWeakCandidateOffersKeepAsTyped(t *testing.T) {
	p := &scriptedPrompter{answers: []string{"1"}}
	r := &Resolver{
		LLM:      extraction(`{"intent": "sales", "mentions": [{"text": "Moong", "kind": "product"}]}`),
		Prompter: p,
		Policy:   DefaultPolicy(),
	}
	res, err := r.Resolve(context.Background(), "Moong sales", fixtureCatalog())
	require.NoError(t, err)

	assert.Equal(t, []string{"1. Moong Dal (tbl_product_master.product_name)", `2. Keep "Moong" as typed`}, p.requests[0].Options)
	assert.Equal(t, []string{"Moong Dal"}, res.Resolved.Entities)
}

func TestClarificationTimeoutPolicy(t *testing.T) {
	timeout := qerrors.New(qerrors.ClarificationTimeout, "no answer within 2m0s")
	mk := func(policy TimeoutPolicy) *Resolver {
		pol := DefaultPolicy()
		pol.OnTimeout = policy
		return &Resolver{
			LLM:      extraction(`{"intent": "sales", "mentions": [{"text": "Dehi", "kind": "location"}]}`),
			Prompter: &scriptedPrompter{err: timeout},
			Policy:   pol,
		}
	}

	_, err := mk(TimeoutFail).Resolve(context.Background(), "Dehi sales", fixtureCatalog())
	assert.True(t, qerrors.IsKind(err, qerrors.ClarificationTimeout))

	res, err := mk(TimeoutFirst).Resolve(context.Background(), "Dehi sales", fixtureCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"Delhi"}, res.Resolved.Entities)
	assert.Contains(t, res.Trace, "entity_resolver: no answer in time, used option 1")
}

func TestModelUnavailableIsFatal(t *testing.T) {
	r := &Resolver{
		LLM:    llmtest.New(llmtest.Fail("entity extractor", errors.New("connection refused"))),
		Policy: DefaultPolicy(),
	}
	_, err := r.Resolve(context.Background(), "Bhujia sales", fixtureCatalog())
	assert.True(t, qerrors.IsKind(err, qerrors.LLMUnavailable))
}

func TestUnparseableExtractionYieldsNoEntities(t *testing.T) {
	r := &Resolver{LLM: extraction("I am not sure."), Policy: DefaultPolicy()}
	res, err := r.Resolve(context.Background(), "total sales", fixtureCatalog())
	require.NoError(t, err)
	assert.Equal(t, "unknown", res.Resolved.Intent)
	assert.Empty(t, res.Resolved.Entities)
	assert.NotEmpty(t, res.AnnotatedSchema)
}

func TestDuplicateMentionsAreBoundOnce(t *testing.T) {
	r := &Resolver{
		LLM:    extraction(`{"intent": "x", "mentions": [{"text": "Bhujia", "kind": "product"}, {"text": "bhujia", "kind": "product"}, {"text": " ", "kind": "other"}]}`),
		Policy: DefaultPolicy(),
	}
	res, err := r.Resolve(context.Background(), "bhujia vs Bhujia", fixtureCatalog())
	require.NoError(t, err)
	assert.Len(t, res.Bindings, 1)
}

func TestNoPrompterFailsWhenAskingIsNeeded(t *testing.T) {
	r := &Resolver{
		LLM:    extraction(`{"intent": "sales", "mentions": [{"text": "Dehi", "kind": "location"}]}`),
		Policy: DefaultPolicy(),
	}
	_, err := r.Resolve(context.Background(), "Dehi sales", fixtureCatalog())
	assert.Error(t, err)
}
