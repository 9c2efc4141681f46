// Package llmtest provides scripted Completers for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrUnscripted is returned for prompts no rule matches.
var ErrUnscripted = errors.New("llmtest: no scripted response")

// Rule answers prompts whose system prompt contains Marker.
type Rule struct {
	Marker string
	Reply  func(user string) (string, error)
}

// Script is a Completer that routes each call to the first matching rule
// and records every call.
type Script struct {
	mu    sync.Mutex
	rules []Rule
	calls []Call
}

// Call is one recorded Complete invocation.
type Call struct {
	System, User string
}

// New returns a script with the given rules.
func New(rules ...Rule) *Script { return &Script{rules: rules} }

// Reply is a Rule that always returns text.
func Reply(marker, text string) Rule {
	return Rule{Marker: marker, Reply: func(string) (string, error) { return text, nil }}
}

// Fail is a Rule that always returns err.
func Fail(marker string, err error) Rule {
	return Rule{Marker: marker, Reply: func(string) (string, error) { return "", err }}
}

func (s *Script) Complete(ctx context.Context, system, user string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{System: system, User: user})
	rules := s.rules
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, r := range rules {
		if strings.Contains(system, r.Marker) {
			return r.Reply(user)
		}
	}
	return "", ErrUnscripted
}

// Calls returns the recorded calls.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo counts calls whose system prompt contains marker.
func (s *Script) CallsTo(marker string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c.System, marker) {
			n++
		}
	}
	return n
}
