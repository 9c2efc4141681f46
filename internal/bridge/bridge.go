// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package bridge exposes assistant sessions to remote presentation layers.
// The server side holds sessions in an expiring registry; the client side is
// the Bridge interface with a gRPC implementation.
package bridge

import (
	"context"

	"querypilot/cli/internal/bridge/grpcclient"
	"querypilot/cli/internal/bridge/model"
)

// Bridge is a connection to a remote assistant session.
type Bridge interface {
	// Connect establishes transport to the server.
	Connect(ctx context.Context, addr string, plaintext bool) error
	Close(ctx context.Context) error
	// Ask starts a run; the first call creates the session.
	Ask(ctx context.Context, question string) (model.AskReply, error)
	// Follow streams clarification requests and finally the outcome.
	Follow(ctx context.Context) (<-chan model.Event, error)
	Pending(ctx context.Context) (model.Clarification, error)
	Answer(ctx context.Context, answer string) (model.AnswerReply, error)
	Result(ctx context.Context, wait bool) (model.Outcome, error)
}

// New creates a new bridge instance.
// It returns a gRPC client bridge.
func New() Bridge {
	return &grpcclient.Client{}
}
