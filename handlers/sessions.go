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

	"github.com/gin-gonic/gin"

	"github.com/edgeroom/eventdesk/session"
)

// ListSessions returns a summary of every stored session.
func ListSessions(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		infos, err := store.List(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list sessions", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": infos, "count": len(infos)})
	}
}

// GetSessionHistory returns every turn of a session in arrival order, with
// its statistics. An unknown session id yields an empty history, not a 404.
func GetSessionHistory(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		turns, err := store.GetHistory(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("Failed to load session history", "error", err, "session_id", sessionID)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
		stats, err := store.Stats(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("Failed to load session stats", "error", err, "session_id", sessionID)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"turns":      turns,
			"stats":      stats,
		})
	}
}

// DeleteSession clears a session's history. Clearing an unknown session is
// a success; the operation is idempotent.
func DeleteSession(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		slog.Info("Received a request to delete a session", "session_id", sessionID)

		if err := store.Clear(c.Request.Context(), sessionID); err != nil {
			slog.Error("Failed to clear session", "error", err, "session_id", sessionID)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}
