// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the shared data structures for the assistant
// service: conversation turns, agent results, chat request/response shapes,
// and the events/articles records maintained by ingestion.
package datatypes

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AgentSource identifies which capability produced an answer.
type AgentSource string

const (
	SourceSQL AgentSource = "sql"
	SourceRAG AgentSource = "rag"
)

// Turn is one message within a session. Turns are immutable once appended
// and strictly ordered by arrival; the store assigns Seq.
//
// Agents records which capability produced an assistant turn, for
// auditability. It is empty for user turns and for assistant turns produced
// without any agent (the total-failure apology).
type Turn struct {
	Seq       uint64        `json:"seq"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Agents    []AgentSource `json:"agents,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// NewUserTurn builds a user turn with the current timestamp.
func NewUserTurn(content string) Turn {
	return Turn{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewAssistantTurn builds an assistant turn tagged with the contributing
// agents.
func NewAssistantTurn(content string, agents []AgentSource) Turn {
	return Turn{
		Role:      RoleAssistant,
		Content:   content,
		Agents:    agents,
		Timestamp: time.Now().UnixMilli(),
	}
}

// AgentTag renders the originating-agent tag for a turn: "sql", "rag",
// "both", or "none".
func (t Turn) AgentTag() string {
	switch len(t.Agents) {
	case 0:
		return "none"
	case 1:
		return string(t.Agents[0])
	default:
		return "both"
	}
}

// SessionInfo summarizes a stored session for listings.
type SessionInfo struct {
	SessionID    string `json:"session_id"`
	Turns        int    `json:"turns"`
	CreatedAt    int64  `json:"created_at"`
	LastActivity int64  `json:"last_activity"`
}

// SessionStats carries per-session statistics surfaced on the history
// endpoint.
type SessionStats struct {
	TurnCount    int   `json:"turn_count"`
	CreatedAt    int64 `json:"created_at"`
	LastActivity int64 `json:"last_activity"`
}
