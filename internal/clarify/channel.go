// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package clarify is the hand-off between a pipeline run that needs a human
// decision and whatever presentation layer can ask for one.
//
// A Channel is a single-slot mailbox owned by one session. The run posts a
// Request and blocks in Await; the presentation layer learns about the
// request through Notify (or by polling Pending/Waiting) and answers with
// Submit. At most one request is outstanding, and a request exists exactly
// while a run is blocked on it.
package clarify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	qerrors "querypilot/cli/internal/errors"
)

var (
	// ErrNoPendingRequest is returned by Submit when nothing is waiting.
	ErrNoPendingRequest = errors.New("no input needed right now")
	// ErrRequestOutstanding is returned by Post while another request waits.
	ErrRequestOutstanding = errors.New("a clarification request is already outstanding")
	// ErrNothingPosted is returned by Await without a preceding Post.
	ErrNothingPosted = errors.New("no clarification request posted")
)

// DefaultTimeout bounds the wait for an answer.
const DefaultTimeout = 2 * time.Minute

// Request is a multiple-choice question for the human.
type Request struct {
	Prompt  string
	Options []string
}

// Prompter is what the entity resolver depends on.
type Prompter interface {
	Ask(ctx context.Context, req Request) (string, error)
}

// Channel implements Prompter for one session.
type Channel struct {
	clock   clockwork.Clock
	timeout time.Duration

	mu      sync.Mutex
	pending *Request
	answers chan string
	notify  chan Request
	waiting atomic.Bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithClock replaces the real clock (tests use a fake one).
func WithClock(c clockwork.Clock) Option { return func(ch *Channel) { ch.clock = c } }

// WithTimeout sets how long Await waits. Zero or negative waits forever.
func WithTimeout(d time.Duration) Option { return func(ch *Channel) { ch.timeout = d } }

// NewChannel returns an empty channel.
func NewChannel(opts ...Option) *Channel {
	c := &Channel{
		clock:   clockwork.NewRealClock(),
		timeout: DefaultTimeout,
		answers: make(chan string, 1),
		notify:  make(chan Request, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Post publishes a request. It fails if one is already outstanding.
func (c *Channel) Post(req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return ErrRequestOutstanding
	}
	r := Request{Prompt: req.Prompt, Options: append([]string(nil), req.Options...)}
	c.pending = &r
	c.waiting.Store(true)
	c.drainNotify()
	c.notify <- r
	return nil
}

// Await blocks until Submit delivers an answer, ctx is done or the timeout
// expires. The request is cleared on every return path.
func (c *Channel) Await(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.pending == nil && len(c.answers) == 0 {
		c.mu.Unlock()
		return "", ErrNothingPosted
	}
	c.mu.Unlock()

	var expired <-chan time.Time
	if c.timeout > 0 {
		t := c.clock.NewTimer(c.timeout)
		defer t.Stop()
		expired = t.Chan()
	}

	select {
	case a := <-c.answers:
		return a, nil
	case <-ctx.Done():
		if a, ok := c.abandon(); ok {
			return a, nil
		}
		return "", ctx.Err()
	case <-expired:
		if a, ok := c.abandon(); ok {
			return a, nil
		}
		return "", qerrors.New(qerrors.ClarificationTimeout, fmt.Sprintf("no answer within %s", c.timeout))
	}
}

// abandon clears the outstanding request. If Submit won the race the answer
// is already buffered and is returned instead.
func (c *Channel) abandon() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return <-c.answers, true
	}
	c.pending = nil
	c.waiting.Store(false)
	c.drainNotify()
	return "", false
}

// Ask posts req and waits for the answer.
func (c *Channel) Ask(ctx context.Context, req Request) (string, error) {
	if err := c.Post(req); err != nil {
		return "", err
	}
	return c.Await(ctx)
}

// Submit delivers an answer to the outstanding request.
func (c *Channel) Submit(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoPendingRequest
	}
	c.pending = nil
	c.waiting.Store(false)
	c.drainNotify()
	c.answers <- token
	return nil
}

// Pending returns the outstanding request, if any.
func (c *Channel) Pending() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Request{}, false
	}
	return Request{Prompt: c.pending.Prompt, Options: append([]string(nil), c.pending.Options...)}, true
}

// Waiting reports whether a run is blocked on a request. Safe to poll.
func (c *Channel) Waiting() bool { return c.waiting.Load() }

// Notify delivers each posted request once. A request that is answered or
// abandoned before anyone reads it is withdrawn.
func (c *Channel) Notify() <-chan Request { return c.notify }

func (c *Channel) drainNotify() {
	select {
	case <-c.notify:
	default:
	}
}
