// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"querypilot/cli/internal/clarify"
)

func ambiguousRequest(m Mention, cands []Candidate) clarify.Request {
	what := "value"
	switch m.Kind {
	case KindProduct:
		what = "product"
	case KindLocation:
		what = "location"
	}
	req := clarify.Request{Prompt: fmt.Sprintf("Which %s did you mean by %q?", what, m.Text)}
	for i, c := range cands {
		req.Options = append(req.Options, fmt.Sprintf("%d. %s", i+1, c.Label()))
	}
	if len(cands) == 1 {
		req.Options = append(req.Options, fmt.Sprintf("2. Keep %q as typed", m.Text))
	}
	return req
}

func unresolvedRequest(m Mention) clarify.Request {
	return clarify.Request{
		Prompt: fmt.Sprintf("I couldn't find %q in the data. How should I treat it?", m.Text),
		Options: []string{
			fmt.Sprintf("1. Keep %q as typed", m.Text),
			"2. Ignore this term",
		},
	}
}

// ParseChoice reads an answer such as "2" or "2. Dehri (tbl_shipment.city)".
// Anything that is not a number between 1 and n selects option 1.
func ParseChoice(answer string, n int) int {
	s := strings.TrimSpace(answer)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 1
	}
	if end < len(s) && s[end] != '.' && s[end] != ' ' && s[end] != ')' {
		return 1
	}
	k, err := strconv.Atoi(s[:end])
	if err != nil || k < 1 || k > n {
		return 1
	}
	return k
}
