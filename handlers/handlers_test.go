// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeroom/eventdesk/agents"
	"github.com/edgeroom/eventdesk/config"
	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/session"
	"github.com/edgeroom/eventdesk/supervisor"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// cannedAgent implements agents.Agent with a fixed result.
type cannedAgent struct {
	source datatypes.AgentSource
	result datatypes.AgentResult
}

var _ agents.Agent = (*cannedAgent)(nil)

func (a *cannedAgent) Source() datatypes.AgentSource { return a.source }

func (a *cannedAgent) Query(context.Context, string, []datatypes.Turn) datatypes.AgentResult {
	return a.result
}

func newTestSetup(t *testing.T) (*supervisor.Supervisor, *session.BadgerStore) {
	t.Helper()
	store, err := session.NewBadgerStore(session.InMemoryBadgerConfig(), config.RetentionPolicy{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sqlAgent := &cannedAgent{
		source: datatypes.SourceSQL,
		result: datatypes.AgentResult{Source: datatypes.SourceSQL, Success: true, Payload: "Found 1 matching record"},
	}
	ragAgent := &cannedAgent{
		source: datatypes.SourceRAG,
		result: datatypes.AgentResult{Source: datatypes.SourceRAG, Success: true, Payload: "Articles cover the topic."},
	}
	sup := supervisor.New(nil, []agents.Agent{sqlAgent, ragAgent}, store, config.Default())
	return sup, store
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HealthCheck
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

// =============================================================================
// HandleChat
// =============================================================================

func TestHandleChat_AnswersAndMintsSession(t *testing.T) {
	sup, _ := newTestSetup(t)
	router := gin.New()
	router.POST("/v1/chat", HandleChat(sup))

	w := postJSON(router, "/v1/chat", datatypes.ChatRequest{Message: "how many events?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.ResponseID)
	assert.NotEmpty(t, resp.Response)
	assert.Equal(t, 2, resp.TurnCount)
	assert.Empty(t, resp.AgentOutcomes)
}

func TestHandleChat_ReusesSessionAcrossTurns(t *testing.T) {
	sup, _ := newTestSetup(t)
	router := gin.New()
	router.POST("/v1/chat", HandleChat(sup))

	w := postJSON(router, "/v1/chat", datatypes.ChatRequest{Message: "first", SessionID: "fixed"})
	require.Equal(t, http.StatusOK, w.Code)
	w = postJSON(router, "/v1/chat", datatypes.ChatRequest{Message: "second", SessionID: "fixed"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "fixed", resp.SessionID)
	assert.Equal(t, 4, resp.TurnCount)
}

func TestHandleChat_DiagnosticsExposesOutcomes(t *testing.T) {
	sup, _ := newTestSetup(t)
	router := gin.New()
	router.POST("/v1/chat", HandleChat(sup))

	w := postJSON(router, "/v1/chat", datatypes.ChatRequest{Message: "anything", Diagnostics: true})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AgentOutcomes)
}

func TestHandleChat_RejectsEmptyMessage(t *testing.T) {
	sup, _ := newTestSetup(t)
	router := gin.New()
	router.POST("/v1/chat", HandleChat(sup))

	w := postJSON(router, "/v1/chat", datatypes.ChatRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChat_RejectsOversizedMessage(t *testing.T) {
	sup, _ := newTestSetup(t)
	router := gin.New()
	router.POST("/v1/chat", HandleChat(sup))

	w := postJSON(router, "/v1/chat", datatypes.ChatRequest{
		Message: strings.Repeat("a", datatypes.MaxMessageContentBytes+1),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChat_RejectsMalformedBody(t *testing.T) {
	sup, _ := newTestSetup(t)
	router := gin.New()
	router.POST("/v1/chat", HandleChat(sup))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/chat", bytes.NewReader([]byte("{not json")))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Session Handlers
// =============================================================================

func TestGetSessionHistory_ReturnsTurnsInOrder(t *testing.T) {
	_, store := newTestSetup(t)
	router := gin.New()
	router.GET("/v1/sessions/:sessionId/history", GetSessionHistory(store))

	ctx := context.Background()
	_, err := store.Append(ctx, "s1", datatypes.NewUserTurn("question"))
	require.NoError(t, err)
	_, err = store.Append(ctx, "s1", datatypes.NewAssistantTurn("answer", []datatypes.AgentSource{datatypes.SourceSQL}))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/sessions/s1/history", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SessionID string                 `json:"session_id"`
		Turns     []datatypes.Turn       `json:"turns"`
		Stats     datatypes.SessionStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Turns, 2)
	assert.Equal(t, "question", resp.Turns[0].Content)
	assert.Equal(t, "answer", resp.Turns[1].Content)
	assert.Equal(t, 2, resp.Stats.TurnCount)
}

func TestGetSessionHistory_UnknownSessionIsEmpty(t *testing.T) {
	_, store := newTestSetup(t)
	router := gin.New()
	router.GET("/v1/sessions/:sessionId/history", GetSessionHistory(store))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/sessions/never/history", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteSession_IsIdempotent(t *testing.T) {
	_, store := newTestSetup(t)
	router := gin.New()
	router.DELETE("/v1/sessions/:sessionId", DeleteSession(store))

	_, err := store.Append(context.Background(), "s1", datatypes.NewUserTurn("hello"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/v1/sessions/s1", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	history, err := store.GetHistory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestListSessions_ReportsCount(t *testing.T) {
	_, store := newTestSetup(t)
	router := gin.New()
	router.GET("/v1/sessions", ListSessions(store))

	ctx := context.Background()
	_, err := store.Append(ctx, "a", datatypes.NewUserTurn("x"))
	require.NoError(t, err)
	_, err = store.Append(ctx, "b", datatypes.NewUserTurn("y"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/sessions", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sessions []datatypes.SessionInfo `json:"sessions"`
		Count    int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}
