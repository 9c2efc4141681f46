// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package model defines the messages exchanged between the bridge server
// and its clients. Messages travel as google.protobuf.Struct values, so no
// generated code is needed on either side.
package model

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service the bridge serves.
const ServiceName = "querypilot.bridge.v1.Assistant"

// Full method names.
const (
	MethodAsk     = "/" + ServiceName + "/Ask"
	MethodPending = "/" + ServiceName + "/Pending"
	MethodAnswer  = "/" + ServiceName + "/Answer"
	MethodResult  = "/" + ServiceName + "/Result"
	MethodFollow  = "/" + ServiceName + "/Follow"
)

// Event types sent on a Follow stream.
const (
	EventClarification = "clarification"
	EventResult        = "result"
)

// SessionRef names a session.
type SessionRef struct {
	SessionID string `json:"session_id"`
}

// AskRequest starts a run. An empty SessionID creates a session.
type AskRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question"`
}

// AskReply identifies the started run.
type AskReply struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
}

// Clarification is the pending question a run is blocked on.
type Clarification struct {
	Waiting bool     `json:"waiting"`
	Prompt  string   `json:"prompt,omitempty"`
	Options []string `json:"options,omitempty"`
}

// AnswerRequest answers the pending clarification.
type AnswerRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// AnswerReply reports whether the answer was taken.
type AnswerReply struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// ResultRequest fetches the outcome; Wait blocks until the run ends.
type ResultRequest struct {
	SessionID string `json:"session_id"`
	Wait      bool   `json:"wait,omitempty"`
}

// Outcome is the finished run as seen by a client.
type Outcome struct {
	Done             bool     `json:"done"`
	FinalOutput      string   `json:"final_output,omitempty"`
	ValidatedSQL     string   `json:"validated_sql,omitempty"`
	ValidationStatus string   `json:"validation_status,omitempty"`
	ValidationError  string   `json:"validation_error,omitempty"`
	ExecutionStatus  string   `json:"execution_status,omitempty"`
	ExecutionError   string   `json:"execution_error,omitempty"`
	RouteDecision    string   `json:"route_decision,omitempty"`
	Intent           string   `json:"intent,omitempty"`
	Entities         []string `json:"entities,omitempty"`
	Columns          []string `json:"columns,omitempty"`
	Rows             [][]any  `json:"rows,omitempty"`
	Details          string   `json:"details,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Event is one message on a Follow stream.
type Event struct {
	Type          string         `json:"type"`
	Clarification *Clarification `json:"clarification,omitempty"`
	Outcome       *Outcome       `json:"outcome,omitempty"`
}

// Encode converts v into a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Decode fills v from s.
func Decode(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
