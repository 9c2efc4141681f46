// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"querypilot/cli/internal/clarify"
	qerrors "querypilot/cli/internal/errors"
)

// ErrRunInProgress is returned by Start while a run is still going.
var ErrRunInProgress = qerrors.New(qerrors.RunInProgress, "a question is already being answered in this session")

// Session runs at most one question at a time on its own goroutine and owns
// the clarification channel that run asks through.
type Session struct {
	ID string

	assistant Assistant
	channel   *clarify.Channel

	mu      sync.Mutex
	running bool
	runID   string
	done    chan struct{}
	cancel  context.CancelFunc
	state   *State
	err     error
}

// NewSession returns an idle session. opts configure its clarification
// channel.
func NewSession(a Assistant, opts ...clarify.Option) *Session {
	ch := clarify.NewChannel(opts...)
	a.Prompter = ch
	done := make(chan struct{})
	close(done)
	return &Session{
		ID:        uuid.NewString(),
		assistant: a,
		channel:   ch,
		done:      done,
	}
}

// Start begins answering query and returns the run ID. The run outlives
// ctx's cancellation but keeps its values; use Cancel to stop it.
func (s *Session) Start(ctx context.Context, query string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return "", ErrRunInProgress
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.running = true
	s.runID = uuid.NewString()
	s.done = done
	s.cancel = cancel
	s.state, s.err = nil, nil

	runID := s.runID
	go func() {
		defer close(done)
		defer cancel()
		var (
			st  *State
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				err = qerrors.New(qerrors.Internal, fmt.Sprintf("run panicked: %v", r))
				st = &State{UserQuery: query, FinalOutput: UserMessage(err)}
				s.assistant.log().Error("PANIC in session run",
					"session", s.ID, "run_id", runID, "panic", r, "stack", string(debug.Stack()))
			}
			s.mu.Lock()
			s.state, s.err = st, err
			s.running = false
			s.mu.Unlock()
		}()
		st, err = s.assistant.Run(runCtx, query)
	}()
	return s.runID, nil
}

// Ask starts a run and waits for it.
func (s *Session) Ask(ctx context.Context, query string) (*State, error) {
	if _, err := s.Start(ctx, query); err != nil {
		return nil, err
	}
	return s.Wait(ctx)
}

// Wait blocks until the current run finishes or ctx is done.
func (s *Session) Wait(ctx context.Context) (*State, error) {
	select {
	case <-s.Done():
		return s.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the current run finishes. It is already closed when
// no run was started.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Result returns the last finished run's state and error. Both are nil
// while a run is going.
func (s *Session) Result() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.err
}

// Running reports whether a run is in progress.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunID returns the ID of the current or last run.
func (s *Session) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Clarifications returns the session's clarification channel.
func (s *Session) Clarifications() *clarify.Channel { return s.channel }

// Submit answers the pending clarification request.
func (s *Session) Submit(answer string) error { return s.channel.Submit(answer) }

// Cancel stops the current run, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
