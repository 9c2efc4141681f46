// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"querypilot/cli/internal/bridge/model"
	"querypilot/cli/internal/clarify"
	qerrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/metrics"
	"querypilot/cli/internal/pipeline"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Service is the handler set registered with gRPC.
type Service interface {
	Ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Pending(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Answer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Result(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Follow(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// Server exposes pipeline sessions over gRPC. Sessions expire after a
// period without use; an expiring session's run is cancelled.
type Server struct {
	newSession func() *pipeline.Session
	sessions   *ttlcache.Cache[string, *pipeline.Session]
	log        *slog.Logger
}

// NewServer returns a server creating sessions with newSession.
func NewServer(newSession func() *pipeline.Session, ttl time.Duration, log *slog.Logger) *Server {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *pipeline.Session](ttl),
	)
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *pipeline.Session]) {
		item.Value().Cancel()
		metrics.ActiveSessions.Dec()
		log.Debug("session evicted", "session", item.Key(), "reason", reason)
	})
	return &Server{newSession: newSession, sessions: cache, log: log}
}

// Register attaches the service to g.
func (s *Server) Register(g *grpc.Server) { g.RegisterService(&serviceDesc, s) }

// Start runs the expiry loop until Stop.
func (s *Server) Start() { s.sessions.Start() }

// Stop ends the expiry loop and drops every session.
func (s *Server) Stop() {
	s.sessions.Stop()
	s.sessions.DeleteAll()
}

func (s *Server) session(id string) (*pipeline.Session, error) {
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	item := s.sessions.Get(id)
	if item == nil {
		return nil, status.Errorf(codes.NotFound, "session %s not found or expired", id)
	}
	return item.Value(), nil
}

func (s *Server) Ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req model.AskRequest
	if err := model.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var sess *pipeline.Session
	if req.SessionID == "" {
		sess = s.newSession()
		s.sessions.Set(sess.ID, sess, ttlcache.DefaultTTL)
		metrics.ActiveSessions.Inc()
	} else {
		var err error
		if sess, err = s.session(req.SessionID); err != nil {
			return nil, err
		}
	}

	runID, err := sess.Start(ctx, req.Question)
	if err != nil {
		if qerrors.IsKind(err, qerrors.RunInProgress) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Internal, logging.Mask(err.Error()))
	}
	s.log.Info("run started", "session", sess.ID, "run", runID)
	return model.Encode(model.AskReply{SessionID: sess.ID, RunID: runID})
}

func (s *Server) Pending(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.ref(in)
	if err != nil {
		return nil, err
	}
	return model.Encode(clarification(sess.Clarifications()))
}

func (s *Server) Answer(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req model.AnswerRequest
	if err := model.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	reply := model.AnswerReply{Accepted: true, Message: "Choice submitted! Processing continues..."}
	if err := sess.Submit(req.Answer); err != nil {
		if !errors.Is(err, clarify.ErrNoPendingRequest) {
			return nil, status.Error(codes.Internal, err.Error())
		}
		reply = model.AnswerReply{Message: err.Error()}
	}
	return model.Encode(reply)
}

func (s *Server) Result(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req model.ResultRequest
	if err := model.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.Wait {
		if _, err := sess.Wait(ctx); err != nil && ctx.Err() != nil {
			return nil, status.FromContextError(err).Err()
		}
	}
	return model.Encode(outcome(sess))
}

// Follow streams clarification requests as they are posted and ends with
// the run's outcome.
func (s *Server) Follow(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	sess, err := s.ref(in)
	if err != nil {
		return err
	}
	ch := sess.Clarifications()
	done := sess.Done()

	send := func(ev model.Event) error {
		msg, err := model.Encode(ev)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		return stream.Send(msg)
	}

	if c := clarification(ch); c.Waiting {
		// Drop the notification for the request just sent.
		select {
		case <-ch.Notify():
		default:
		}
		if err := send(model.Event{Type: model.EventClarification, Clarification: &c}); err != nil {
			return err
		}
	}

	for {
		select {
		case req := <-ch.Notify():
			c := model.Clarification{Waiting: true, Prompt: req.Prompt, Options: req.Options}
			if err := send(model.Event{Type: model.EventClarification, Clarification: &c}); err != nil {
				return err
			}
		case <-done:
			o := outcome(sess)
			return send(model.Event{Type: model.EventResult, Outcome: &o})
		case <-stream.Context().Done():
			return status.FromContextError(stream.Context().Err()).Err()
		}
	}
}

func (s *Server) ref(in *structpb.Struct) (*pipeline.Session, error) {
	var ref model.SessionRef
	if err := model.Decode(in, &ref); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return s.session(ref.SessionID)
}

func clarification(ch *clarify.Channel) model.Clarification {
	req, ok := ch.Pending()
	if !ok {
		return model.Clarification{}
	}
	return model.Clarification{Waiting: true, Prompt: req.Prompt, Options: req.Options}
}

func outcome(sess *pipeline.Session) model.Outcome {
	if sess.Running() {
		return model.Outcome{}
	}
	return OutcomeOf(sess.Result())
}

// OutcomeOf converts a finished run into its client view.
func OutcomeOf(st *pipeline.State, err error) model.Outcome {
	o := model.Outcome{Done: true}
	if err != nil {
		o.Error = logging.Mask(err.Error())
	}
	if st == nil {
		return o
	}
	o.FinalOutput = st.FinalOutput
	o.ValidatedSQL = st.ValidatedSQL
	if o.ValidatedSQL == "" {
		o.ValidatedSQL = st.SQLCandidate
	}
	o.ValidationStatus = string(st.ValidationStatus)
	o.ValidationError = st.ValidationError
	o.ExecutionStatus = string(st.ExecutionStatus)
	o.ExecutionError = st.ExecutionError
	o.RouteDecision = string(st.RouteDecision)
	o.Intent = st.Resolved.Intent
	o.Entities = st.Resolved.Entities
	o.Columns = st.ExecutionResult.Columns
	for _, r := range st.Rows() {
		o.Rows = append(o.Rows, r.Values)
	}
	o.Details = pipeline.Details(st)
	return o
}

func unary(name string, call func(*Server, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(*Server), ctx, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + model.ServiceName + "/" + name}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: model.ServiceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ask", (*Server).Ask),
		unary("Pending", (*Server).Pending),
		unary("Answer", (*Server).Answer),
		unary("Result", (*Server).Result),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Follow",
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(*Server).Follow(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
		},
	}},
	Metadata: "querypilot/bridge.proto",
}
