// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgeroom/eventdesk/handlers"
	"github.com/edgeroom/eventdesk/ingest"
	"github.com/edgeroom/eventdesk/session"
	"github.com/edgeroom/eventdesk/supervisor"
)

func SetupRoutes(router *gin.Engine, sup *supervisor.Supervisor, store session.Store, pipeline *ingest.Pipeline) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(sup))
		v1.POST("/data/fetch", handlers.HandleDataFetch(pipeline))
		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(store))
			sessions.GET("/:sessionId/history", handlers.GetSessionHistory(store))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(store))
		}
	}
}
