package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "querypilot/cli/internal/errors"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"raw", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "Here you go:\n```json\n{\"a\": 1}\n```\nthanks", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"embedded", `The answer is {"a": "}{", "b": {"c": 2}} as requested.`, `{"a": "}{", "b": {"c": 2}}`},
		{"escaped quote", `{"a": "say \"hi\" }"}`, `{"a": "say \"hi\" }"}`},
		{"unbalanced", `{"a": 1`, ""},
		{"none", "no json here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.response))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Intent string `json:"intent"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"intent\": \"sales\"}\n```", &v))
	assert.Equal(t, "sales", v.Intent)
	assert.ErrorIs(t, DecodeJSON("nothing", &v), ErrNoJSON)
}

func TestRetryingRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	r := &Retrying{
		Next: Func(func(ctx context.Context, system, user string) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("overloaded")
			}
			return "ok", nil
		}),
		Tries:   3,
		Initial: time.Millisecond,
	}

	out, err := r.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestRetryingGivesUp(t *testing.T) {
	calls := 0
	r := &Retrying{
		Next: Func(func(ctx context.Context, system, user string) (string, error) {
			calls++
			return "", errors.New("connection refused")
		}),
		Tries:   2,
		Initial: time.Millisecond,
	}

	_, err := r.Complete(context.Background(), "s", "u")
	assert.True(t, qerrors.IsKind(err, qerrors.LLMUnavailable))
	assert.Equal(t, 2, calls)
}

func TestRetryingStopsOnPermanentError(t *testing.T) {
	calls := 0
	bad := errors.New("invalid x-api-key")
	r := &Retrying{
		Next: Func(func(ctx context.Context, system, user string) (string, error) {
			calls++
			return "", bad
		}),
		IsTransient: func(error) bool { return false },
		Initial:     time.Millisecond,
	}

	_, err := r.Complete(context.Background(), "s", "u")
	assert.True(t, qerrors.IsKind(err, qerrors.LLMUnavailable))
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(errors.New("dial tcp: connection refused")))
	assert.False(t, Transient(context.Canceled))
}
