// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package resolver turns the free-text references in a question ("bhujia",
// "Dehi", "last 3 months") into values that actually exist in the catalog.
// Clear matches are bound silently; close calls and unknown terms are put to
// the human through a clarify.Prompter.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"querypilot/cli/internal/catalog"
	"querypilot/cli/internal/clarify"
	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/llm"
)

// Kind is the sort of thing a mention refers to.
type Kind string

const (
	KindProduct  Kind = "product"
	KindLocation Kind = "location"
	KindTime     Kind = "time"
	KindOther    Kind = "other"
)

// Mention is a raw entity reference extracted from the question.
type Mention struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// How records the way a binding was made.
type How string

const (
	HowExact    How = "exact"
	HowFuzzy    How = "fuzzy"
	HowHuman    How = "human"
	HowFlagged  How = "flagged"
	HowVerbatim How = "verbatim"
	HowIgnored  How = "ignored"
)

// Binding ties a mention to the value the SQL should use. Table and Column
// are empty for flagged, verbatim and ignored bindings.
type Binding struct {
	Mention string
	Kind    Kind
	Value   string
	Table   string
	Column  string
	How     How
}

// Resolved is the intent plus the ordered entity values.
type Resolved struct {
	Intent   string
	Entities []string
}

// Result is everything the resolver hands to SQL generation.
type Result struct {
	Resolved        Resolved
	Bindings        []Binding
	AnnotatedSchema string
	Trace           []string
}

// TimeoutPolicy decides what an unanswered clarification turns into.
type TimeoutPolicy string

const (
	// TimeoutFail aborts the run.
	TimeoutFail TimeoutPolicy = "fail"
	// TimeoutFirst takes option 1.
	TimeoutFirst TimeoutPolicy = "first"
)

// Policy holds the matching thresholds.
type Policy struct {
	AcceptThreshold    float64
	Margin             float64
	CandidateThreshold float64
	MaxOptions         int
	OnTimeout          TimeoutPolicy
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		AcceptThreshold:    0.80,
		Margin:             0.10,
		CandidateThreshold: 0.60,
		MaxOptions:         6,
		OnTimeout:          TimeoutFail,
	}
}

// Resolver binds mentions to catalog values.
type Resolver struct {
	LLM      llm.Completer
	Prompter clarify.Prompter
	Policy   Policy
	Logger   *slog.Logger
}

// ExtractPrompt asks for the intent and the raw mentions.
const ExtractPrompt = `You are the entity extractor of a natural-language database assistant.
Read the user's question and identify what they want and which concrete business entities they mention.

Reply with JSON only:
{"intent": "<short snake_case label such as sales_aggregation or product_lookup>",
 "mentions": [{"text": "<the words exactly as the user wrote them>", "kind": "product" | "location" | "time" | "other"}]}

- product: product names, brands, categories.
- location: cities, states, regions.
- time: time windows such as "last month" or "in 2024".
- other: any other specific value the query must filter on (distributor names, channels).
Do not include generic words like "sales", "products" or "total". Return an empty list when there are none.`

// Resolve extracts mentions, matches them and asks the human where needed.
// It fails only when the model is unreachable or a clarification cannot be
// obtained under the timeout policy.
func (r *Resolver) Resolve(ctx context.Context, query string, cat *catalog.Catalog) (Result, error) {
	var res Result
	intent, mentions, err := r.extract(ctx, query, cat)
	if err != nil {
		return res, err
	}
	res.Resolved.Intent = intent
	res.trace("intent: %s", intent)

	seen := map[string]bool{}
	for _, m := range mentions {
		key := string(m.Kind) + "|" + Normalize(m.Text)
		if strings.TrimSpace(m.Text) == "" || seen[key] {
			continue
		}
		seen[key] = true

		b, err := r.bind(ctx, m, cat, &res)
		if err != nil {
			return res, err
		}
		res.Bindings = append(res.Bindings, b)
		if b.How != HowIgnored {
			res.Resolved.Entities = append(res.Resolved.Entities, b.Value)
		}
	}

	var relevant []catalog.Entity
	for _, b := range res.Bindings {
		if b.Table != "" {
			relevant = append(relevant, catalog.Entity{Table: b.Table, Column: b.Column, Value: b.Value})
		}
	}
	res.AnnotatedSchema = cat.Annotate(relevant)
	return res, nil
}

func (r *Resolver) extract(ctx context.Context, query string, cat *catalog.Catalog) (string, []Mention, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nColumns that hold named values:\n", query)
	for _, t := range cat.Tables() {
		for _, c := range cat.Columns(t) {
			if len(cat.Values(t, c)) > 0 {
				fmt.Fprintf(&b, "- %s.%s\n", t, c)
			}
		}
	}

	resp, err := r.LLM.Complete(ctx, ExtractPrompt, b.String())
	if err != nil {
		if qerrors.KindOf(err) == qerrors.LLMUnavailable {
			return "", nil, err
		}
		return "", nil, qerrors.Wrap(qerrors.LLMUnavailable, "entity extraction", err)
	}

	var parsed struct {
		Intent   string    `json:"intent"`
		Mentions []Mention `json:"mentions"`
	}
	if err := llm.DecodeJSON(resp, &parsed); err != nil {
		r.log().Warn("resolver: unparseable extraction, continuing without entities", "error", err)
		return "unknown", nil, nil
	}
	if strings.TrimSpace(parsed.Intent) == "" {
		parsed.Intent = "unknown"
	}
	for i := range parsed.Mentions {
		switch parsed.Mentions[i].Kind {
		case KindProduct, KindLocation, KindTime:
		default:
			parsed.Mentions[i].Kind = KindOther
		}
	}
	return parsed.Intent, parsed.Mentions, nil
}

func (r *Resolver) bind(ctx context.Context, m Mention, cat *catalog.Catalog, res *Result) (Binding, error) {
	b := Binding{Mention: m.Text, Kind: m.Kind}
	if m.Kind == KindTime {
		b.Value, b.How = m.Text, HowVerbatim
		res.trace("%q (time): passed through", m.Text)
		return b, nil
	}

	d := r.Policy.Decide(Match(m, cat))
	switch d.Outcome {
	case Unambiguous:
		b.How = HowFuzzy
		if d.Best.Score >= 1-eps {
			b.How = HowExact
		}
		b.Value, b.Table, b.Column = d.Best.Entity.Value, d.Best.Entity.Table, d.Best.Entity.Column
		res.trace("%q (%s): %s match %q in %s (score %.2f)", m.Text, m.Kind, b.How, b.Value, d.Best.Entity.Qualified(), d.Best.Score)
		return b, nil

	case Ambiguous:
		req := ambiguousRequest(m, d.Options)
		choice, err := r.ask(ctx, req, res)
		if err != nil {
			return b, err
		}
		if choice > len(d.Options) {
			b.Value, b.How = m.Text, HowFlagged
			res.trace("%q (%s): user kept the term as typed", m.Text, m.Kind)
			return b, nil
		}
		c := d.Options[choice-1]
		b.Value, b.Table, b.Column, b.How = c.Entity.Value, c.Entity.Table, c.Entity.Column, HowHuman
		res.trace("%q (%s): %d candidates, user chose %q in %s", m.Text, m.Kind, len(d.Options), b.Value, c.Entity.Qualified())
		return b, nil
	}

	choice, err := r.ask(ctx, unresolvedRequest(m), res)
	if err != nil {
		return b, err
	}
	b.Value = m.Text
	if choice == 2 {
		b.How = HowIgnored
		res.trace("%q (%s): not in catalog, user chose to ignore it", m.Text, m.Kind)
	} else {
		b.How = HowFlagged
		res.trace("%q (%s): not in catalog, kept as typed", m.Text, m.Kind)
	}
	return b, nil
}

// ask returns the 1-based option the human picked.
func (r *Resolver) ask(ctx context.Context, req clarify.Request, res *Result) (int, error) {
	if r.Prompter == nil {
		return 0, qerrors.New(qerrors.ClarificationTimeout, "clarification needed but nobody can answer")
	}
	answer, err := r.Prompter.Ask(ctx, req)
	if err != nil {
		if qerrors.IsKind(err, qerrors.ClarificationTimeout) && r.Policy.OnTimeout == TimeoutFirst {
			res.trace("no answer in time, used option 1")
			r.log().Info("resolver: clarification timed out, defaulting to option 1", "prompt", req.Prompt)
			return 1, nil
		}
		return 0, err
	}
	return ParseChoice(answer, len(req.Options)), nil
}

func (r *Resolver) log() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func (res *Result) trace(format string, args ...any) {
	res.Trace = append(res.Trace, "entity_resolver: "+fmt.Sprintf(format, args...))
}
