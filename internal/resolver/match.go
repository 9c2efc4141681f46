// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package resolver

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"querypilot/cli/internal/catalog"
)

const eps = 1e-9

var folder = cases.Fold()

// Normalize folds case, strips diacritics and collapses everything that is
// not a letter or digit into single spaces.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = folder.String(s)
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// Score is the similarity of a mention and a catalog value in [0,1]: one
// minus the normalized Levenshtein distance, raised when one side contains
// the other as whole words.
func Score(mention, value string) float64 {
	m, v := Normalize(mention), Normalize(value)
	if m == "" || v == "" {
		return 0
	}
	if m == v {
		return 1
	}
	longest := max(utf8.RuneCountInString(m), utf8.RuneCountInString(v))
	d := fuzzy.LevenshteinDistance(m, v)
	score := float64(longest-d) / float64(longest)

	short, long := m, v
	if len(short) > len(long) {
		short, long = long, short
	}
	if containsWords(long, short) {
		ratio := float64(utf8.RuneCountInString(short)) / float64(utf8.RuneCountInString(long))
		score = max(score, 0.6+0.3*ratio)
	}
	return max(score, 0)
}

func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// Candidate is a scored catalog entity.
type Candidate struct {
	Entity catalog.Entity
	Score  float64
}

// Label renders a candidate as shown in a clarification option.
func (c Candidate) Label() string {
	return c.Entity.Value + " (" + c.Entity.Qualified() + ")"
}

var kindHints = map[Kind][]string{
	KindLocation: {"city", "state", "region", "location", "area", "zone", "district", "country", "town", "territory"},
	KindProduct:  {"product", "item", "sku", "brand", "category", "variant"},
}

// Match scores every catalog entity against a mention, best first. Ties keep
// catalog order, which puts more frequent values first. Product and location
// mentions only look at columns whose names suggest that kind, when any do.
func Match(m Mention, cat *catalog.Catalog) []Candidate {
	entities := cat.Entities()
	if hints := kindHints[m.Kind]; len(hints) > 0 {
		var narrowed []catalog.Entity
		for _, e := range entities {
			col := strings.ToLower(e.Column)
			for _, h := range hints {
				if strings.Contains(col, h) {
					narrowed = append(narrowed, e)
					break
				}
			}
		}
		if len(narrowed) > 0 {
			entities = narrowed
		}
	}

	out := make([]Candidate, 0, len(entities))
	for _, e := range entities {
		if s := Score(m.Text, e.Value); s > 0 {
			out = append(out, Candidate{Entity: e, Score: s})
		}
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score+eps:
			return -1
		case b.Score > a.Score+eps:
			return 1
		}
		return 0
	})
	return out
}

// Outcome classifies a mention's candidates.
type Outcome int

const (
	Unambiguous Outcome = iota
	Ambiguous
	Unresolved
)

func (o Outcome) String() string {
	switch o {
	case Unambiguous:
		return "unambiguous"
	case Ambiguous:
		return "ambiguous"
	}
	return "unresolved"
}

// Decision is the policy's verdict for one mention.
type Decision struct {
	Outcome Outcome
	// Best is set for Unambiguous.
	Best Candidate
	// Options holds the candidates to offer for Ambiguous.
	Options []Candidate
}

// Decide applies the matching policy to sorted candidates.
func (p Policy) Decide(cands []Candidate) Decision {
	if len(cands) == 0 || cands[0].Score < p.CandidateThreshold-eps {
		return Decision{Outcome: Unresolved}
	}
	best := cands[0]
	if best.Score >= 1-eps {
		// An exact match wins unless the same value is exact in another column.
		exact := []Candidate{best}
		elsewhere := false
		for _, c := range cands[1:] {
			if c.Score < 1-eps {
				break
			}
			if len(exact) < p.MaxOptions {
				exact = append(exact, c)
			}
			elsewhere = elsewhere || c.Entity.Qualified() != best.Entity.Qualified()
		}
		if !elsewhere {
			return Decision{Outcome: Unambiguous, Best: best}
		}
		return Decision{Outcome: Ambiguous, Options: exact}
	}
	runnerUp := 0.0
	if len(cands) > 1 {
		runnerUp = cands[1].Score
	}
	if best.Score >= p.AcceptThreshold-eps && best.Score-runnerUp >= p.Margin-eps {
		return Decision{Outcome: Unambiguous, Best: best}
	}

	var opts []Candidate
	for _, c := range cands {
		if c.Score < p.CandidateThreshold-eps || len(opts) == p.MaxOptions {
			break
		}
		opts = append(opts, c)
	}
	return Decision{Outcome: Ambiguous, Options: opts}
}
