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

	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/ingest"
)

// HandleDataFetch triggers one ingestion pass for a date range. Ingestion
// is synchronous; the summary reports what was stored and indexed.
func HandleDataFetch(pipeline *ingest.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.FetchRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Error("Failed to parse the fetch request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			slog.Error("Fetch request failed validation", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		req.EnsureDefaults()

		summary, err := pipeline.Run(c.Request.Context(), req)
		if err != nil {
			slog.Error("Ingestion run failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch upstream data"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "summary": summary})
	}
}
