// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package llm is the text-generation collaborator: a single blocking
// Complete call, an Anthropic-backed implementation and a retrying wrapper.
// Callers treat any error from a Completer as "the model is unavailable".
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Completer turns a system and a user prompt into text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Func adapts a function to Completer.
type Func func(ctx context.Context, system, user string) (string, error)

func (f Func) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// ErrNoJSON means a response carried no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ExtractJSON finds the JSON object in a model response: a ```json block,
// a generic code block starting with '{', or the first balanced object.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}
	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			if content := strings.TrimSpace(response[start : start+end]); strings.HasPrefix(content, "{") {
				return content
			}
		}
	}
	if start := strings.Index(response, "{"); start != -1 {
		return balancedObject(response, start)
	}
	return ""
}

// DecodeJSON extracts and unmarshals the JSON object in response.
func DecodeJSON(response string, v any) error {
	s := ExtractJSON(response)
	if s == "" {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(s), v)
}

func balancedObject(s string, start int) string {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
