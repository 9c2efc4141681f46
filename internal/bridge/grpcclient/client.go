// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package grpcclient provides a gRPC-backed implementation of the Bridge interface.
// It drives a remote assistant session: start a question, follow its
// clarification requests, answer them and fetch the outcome.
package grpcclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"querypilot/cli/internal/bridge/model"
)

var errNotConnected = errors.New("bridge: not connected")

// Client implements bridge.Bridge. It remembers the session created by the
// first Ask and reuses it.
type Client struct {
	conn      *grpc.ClientConn
	SessionID string

	// Dialer overrides the network dialer, for in-memory listeners.
	Dialer func(context.Context, string) (net.Conn, error)
}

// Connect dials addr. Plaintext skips TLS, for local servers.
func (c *Client) Connect(ctx context.Context, addr string, plaintext bool) error {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}

	creds := insecure.NewCredentials()
	if !plaintext {
		creds = credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if c.Dialer != nil {
		opts = append(opts, grpc.WithContextDialer(c.Dialer))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func (c *Client) Close(context.Context) error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	if c.conn == nil {
		return errNotConnected
	}
	req, err := model.Encode(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return describe(err)
	}
	return model.Decode(resp, out)
}

// Ask starts a run for question.
func (c *Client) Ask(ctx context.Context, question string) (model.AskReply, error) {
	var reply model.AskReply
	err := c.call(ctx, model.MethodAsk, model.AskRequest{SessionID: c.SessionID, Question: question}, &reply)
	if err == nil {
		c.SessionID = reply.SessionID
	}
	return reply, err
}

// Pending returns the clarification the run waits on, if any.
func (c *Client) Pending(ctx context.Context) (model.Clarification, error) {
	var out model.Clarification
	err := c.call(ctx, model.MethodPending, model.SessionRef{SessionID: c.SessionID}, &out)
	return out, err
}

// Answer submits an answer to the pending clarification.
func (c *Client) Answer(ctx context.Context, answer string) (model.AnswerReply, error) {
	var out model.AnswerReply
	err := c.call(ctx, model.MethodAnswer, model.AnswerRequest{SessionID: c.SessionID, Answer: answer}, &out)
	return out, err
}

// Result fetches the outcome, blocking until the run ends when wait is set.
func (c *Client) Result(ctx context.Context, wait bool) (model.Outcome, error) {
	var out model.Outcome
	err := c.call(ctx, model.MethodResult, model.ResultRequest{SessionID: c.SessionID, Wait: wait}, &out)
	return out, err
}

// Follow streams the session's events. The channel closes after the result
// event or when the stream fails; a failure is reported as a result event
// carrying the error.
func (c *Client) Follow(ctx context.Context) (<-chan model.Event, error) {
	if c.conn == nil {
		return nil, errNotConnected
	}
	cs, err := c.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, model.MethodFollow)
	if err != nil {
		return nil, describe(err)
	}
	stream := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}
	req, err := model.Encode(model.SessionRef{SessionID: c.SessionID})
	if err != nil {
		return nil, err
	}
	if err := stream.Send(req); err != nil {
		return nil, describe(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, describe(err)
	}

	events := make(chan model.Event, 4)
	go func() {
		defer close(events)
		for {
			msg, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					events <- model.Event{Type: model.EventResult, Outcome: &model.Outcome{Done: true, Error: describe(err).Error()}}
				}
				return
			}
			var ev model.Event
			if err := model.Decode(msg, &ev); err != nil {
				continue
			}
			events <- ev
			if ev.Type == model.EventResult {
				return
			}
		}
	}()
	return events, nil
}

// describe flattens a gRPC status into "Code: message".
func describe(err error) error {
	if st, ok := status.FromError(err); ok {
		return errors.New(st.Code().String() + ": " + st.Message())
	}
	return err
}
