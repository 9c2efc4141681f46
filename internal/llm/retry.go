// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	qerrors "querypilot/cli/internal/errors"
)

// Retrying retries transient failures of Next with exponential backoff. Its
// errors always carry the LLMUnavailable kind.
type Retrying struct {
	Next     Completer
	Tries    uint
	Initial  time.Duration
	MaxDelay time.Duration
	// IsTransient decides what is retried; defaults to Transient.
	IsTransient func(error) bool
	Logger      *slog.Logger
}

func (r *Retrying) Complete(ctx context.Context, system, user string) (string, error) {
	tries := r.Tries
	if tries == 0 {
		tries = 3
	}
	transient := r.IsTransient
	if transient == nil {
		transient = Transient
	}
	bo := backoff.NewExponentialBackOff()
	if r.Initial > 0 {
		bo.InitialInterval = r.Initial
	}
	if r.MaxDelay > 0 {
		bo.MaxInterval = r.MaxDelay
	}

	attempt := 0
	out, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		s, err := r.Next.Complete(ctx, system, user)
		if err == nil {
			return s, nil
		}
		if !transient(err) {
			return "", backoff.Permanent(err)
		}
		if r.Logger != nil {
			r.Logger.Warn("llm: transient failure", "attempt", attempt, "error", err)
		}
		return "", err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(tries))
	if err != nil {
		return "", qerrors.Wrap(qerrors.LLMUnavailable, "language model unavailable", err)
	}
	return out, nil
}
