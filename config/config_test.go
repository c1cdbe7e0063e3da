// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30*time.Second, cfg.AgentTimeout)
	assert.Equal(t, 5, cfg.TopKPassages)
	assert.Equal(t, 5, cfg.ContextWindowTurns)
	assert.InDelta(t, 0.30, cfg.MinRelevance, 0.001)
	assert.Equal(t, 10, cfg.SQLRowLimit)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, 100, cfg.Retention.MaxTurns)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("AGENT_TIMEOUT_SECONDS", "10")
	t.Setenv("RAG_TOP_K_PASSAGES", "8")
	t.Setenv("CONTEXT_WINDOW_TURNS", "3")
	t.Setenv("RAG_MIN_RELEVANCE", "0.5")
	t.Setenv("SQL_ROW_LIMIT", "25")
	t.Setenv("SESSION_MAX_AGE_HOURS", "48")
	t.Setenv("SESSION_MAX_TURNS", "40")

	cfg := FromEnv()

	assert.Equal(t, 10*time.Second, cfg.AgentTimeout)
	assert.Equal(t, 8, cfg.TopKPassages)
	assert.Equal(t, 3, cfg.ContextWindowTurns)
	assert.InDelta(t, 0.5, cfg.MinRelevance, 0.001)
	assert.Equal(t, 25, cfg.SQLRowLimit)
	assert.Equal(t, 48*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, 40, cfg.Retention.MaxTurns)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("AGENT_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("RAG_MIN_RELEVANCE", "-1")

	cfg := FromEnv()

	assert.Equal(t, Default().AgentTimeout, cfg.AgentTimeout)
	assert.InDelta(t, Default().MinRelevance, cfg.MinRelevance, 0.001)
}
