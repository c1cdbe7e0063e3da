// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/observability"
	"github.com/edgeroom/eventdesk/session"
	"github.com/edgeroom/eventdesk/supervisor"
)

var chatTracer = otel.Tracer("eventdesk.handlers")

// HandleChat is the conversation entry point. It validates the request,
// hands the question to the supervisor, and maps supervisor errors to HTTP
// status codes: a session store failure is 503 (it affects every later turn
// of the session), anything else unexpected is 500. Agent failures never
// surface here; they degrade inside the supervisor's merge step.
func HandleChat(sup *supervisor.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		observability.ActiveChatRequests.Inc()
		defer observability.ActiveChatRequests.Dec()
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Chat request failed validation", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		req.EnsureDefaults()
		sessionID := req.EnsureSessionID()
		span.SetAttributes(
			attribute.String("chat.request_id", req.RequestID),
			attribute.String("chat.session_id", sessionID),
		)

		result, err := sup.Chat(ctx, sessionID, req.Message, req.Diagnostics)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if session.IsStoreError(err) {
				slog.Error("Session store unavailable", "error", err, "session_id", sessionID)
				observability.ChatRequestsTotal.WithLabelValues("store_error").Inc()
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
				return
			}
			slog.Error("Chat processing failed", "error", err, "session_id", sessionID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process chat request"})
			return
		}

		elapsed := time.Since(start)
		observability.ChatLatencySeconds.Observe(elapsed.Seconds())

		resp := datatypes.NewChatResponse(req.RequestID, sessionID, result.Response, result.Contributing, result.TurnCount)
		resp.AgentOutcomes = result.Outcomes
		resp.ProcessingTimeMs = elapsed.Milliseconds()
		c.JSON(http.StatusOK, resp)
	}
}
