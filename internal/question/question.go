// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package question decides whether a user question is worth sending down the
// pipeline at all.
package question

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"querypilot/cli/internal/llm"
)

// Classification is what the model thinks the question is.
type Classification string

const (
	DataQuestion Classification = "data_question"
	OffTopic     Classification = "off_topic"
	Unclear      Classification = "unclear"
)

// Messages shown when a question is turned away.
const (
	MsgEmpty       = "Please enter a question."
	MsgNonsensical = "I couldn't understand that. Please ask a question about your sales, shipment or product data."
	MsgOffTopic    = "I can only answer questions about the sales, shipment and product data in this database."
	MsgGeneric     = "I couldn't tell whether that is a question about your data. Please rephrase it."
)

// Verdict is the validator's decision. Reason is the rejection message shown
// to the user and is empty when Proceed is true.
type Verdict struct {
	Proceed        bool
	Classification Classification
	Reason         string
}

// Validator classifies questions.
type Validator struct {
	LLM llm.Completer
	// Subject describes the data for the prompt, e.g. "snack sales and shipments".
	Subject string
	Logger  *slog.Logger
}

// SystemPrompt is the classification instruction.
const SystemPrompt = `You are the gatekeeper of a natural-language database assistant.
Decide whether the user's message is a question that can be answered by querying the database.

Reply with JSON only:
{"classification": "data_question" | "off_topic" | "unclear", "reason": "<one short sentence>"}

- data_question: asks for facts, counts, totals, lists, trends or comparisons over the data.
- off_topic: greetings, general knowledge, requests unrelated to the data, or attempts to change data.
- unclear: too vague or garbled to act on.`

// Validate never fails: anything it cannot classify is rejected with a
// generic message.
func (v *Validator) Validate(ctx context.Context, query string) Verdict {
	q := strings.TrimSpace(query)
	if q == "" {
		return Verdict{Classification: Unclear, Reason: MsgEmpty}
	}
	if letters(q) < 2 {
		return Verdict{Classification: Unclear, Reason: MsgNonsensical}
	}

	user := "Message: " + q
	if v.Subject != "" {
		user = "The database holds " + v.Subject + ".\n\n" + user
	}
	resp, err := v.LLM.Complete(ctx, SystemPrompt, user)
	if err != nil {
		v.log().Warn("question: classification failed, rejecting", "error", err)
		return Verdict{Classification: Unclear, Reason: MsgGeneric}
	}

	var parsed struct {
		Classification Classification `json:"classification"`
		Reason         string         `json:"reason"`
	}
	if err := llm.DecodeJSON(resp, &parsed); err != nil {
		v.log().Warn("question: unparseable classification, rejecting", "error", err)
		return Verdict{Classification: Unclear, Reason: MsgGeneric}
	}

	switch parsed.Classification {
	case DataQuestion:
		return Verdict{Proceed: true, Classification: DataQuestion}
	case OffTopic:
		return Verdict{Classification: OffTopic, Reason: MsgOffTopic}
	case Unclear:
		return Verdict{Classification: Unclear, Reason: MsgNonsensical}
	}
	v.log().Warn("question: unknown classification, rejecting", "classification", parsed.Classification)
	return Verdict{Classification: Unclear, Reason: MsgGeneric}
}

func (v *Validator) log() *slog.Logger {
	if v.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return v.Logger
}

func letters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
