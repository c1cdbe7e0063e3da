// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the request and response types for the chat endpoint.
// Session and listing types live in session.go; event/article records in
// models.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Message is a role-tagged LLM chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MaxMessageContentBytes is the maximum size of a single chat message.
// Byte length, not rune count, to bound memory for large payloads.
const MaxMessageContentBytes = 32 * 1024

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// ChatRequest is the body of POST /v1/chat.
//
// # Fields
//
//   - RequestID: Unique identifier for this request (UUID v4). Generated
//     server-side when omitted; used for tracing and audit logging.
//   - Timestamp: Unix milliseconds (UTC) when the request was created.
//     Filled by EnsureDefaults when omitted.
//   - Message: Required. The user's question, at most 32KB.
//   - SessionID: Optional. Conversation to continue. A new session id is
//     minted when omitted; an unknown id starts an empty session rather
//     than erroring.
//   - Diagnostics: Optional. When true the response carries per-agent
//     outcome detail. Degraded coverage is otherwise not exposed, keeping
//     the chat surface clean.
type ChatRequest struct {
	RequestID   string `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp   int64  `json:"timestamp" validate:"gte=0"`
	Message     string `json:"message" validate:"required,maxbytes"`
	SessionID   string `json:"session_id"`
	Diagnostics bool   `json:"diagnostics"`
}

// Validate checks the request against its validation tags. Call after
// binding the JSON body.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp when the client omitted
// them, so every request is traceable.
func (r *ChatRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// EnsureSessionID returns the request's session id, minting a fresh one for
// first-turn requests that did not supply one.
func (r *ChatRequest) EnsureSessionID() string {
	if r.SessionID == "" {
		r.SessionID = uuid.New().String()
	}
	return r.SessionID
}

// ChatResponse is the body returned by POST /v1/chat.
//
// ContributingAgents names the capability or capabilities whose output is
// present in Response ("sql", "rag", or both). AgentOutcomes is populated
// only for diagnostics requests.
type ChatResponse struct {
	ResponseID         string         `json:"response_id"`
	RequestID          string         `json:"request_id"`
	Timestamp          int64          `json:"timestamp"`
	Response           string         `json:"response"`
	SessionID          string         `json:"session_id"`
	ContributingAgents []AgentSource  `json:"contributing_agents"`
	TurnCount          int            `json:"turn_count"`
	AgentOutcomes      []AgentOutcome `json:"agent_outcomes,omitempty"`
	ProcessingTimeMs   int64          `json:"processing_time_ms,omitempty"`
}

// NewChatResponse creates a ChatResponse with a generated id and timestamp,
// echoing the request id for correlation.
func NewChatResponse(requestID, sessionID, answer string, agents []AgentSource, turnCount int) *ChatResponse {
	if agents == nil {
		agents = []AgentSource{}
	}
	return &ChatResponse{
		ResponseID:         uuid.New().String(),
		RequestID:          requestID,
		Timestamp:          time.Now().UnixMilli(),
		Response:           answer,
		SessionID:          sessionID,
		ContributingAgents: agents,
		TurnCount:          turnCount,
	}
}
