// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the explicit configuration for the assistant service.
//
// Every component constructor takes the options it needs from a Config value
// instead of reading the process environment itself. FromEnv is the single
// place where environment variables are consulted.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// RetentionPolicy bounds how much conversation history a session may keep.
//
// MaxAge is enforced by the retention sweep: sessions idle for longer are
// deleted wholesale. MaxTurns is enforced on append: the oldest turns beyond
// the limit are trimmed. A zero value disables the corresponding bound.
type RetentionPolicy struct {
	MaxAge   time.Duration
	MaxTurns int
}

// Config enumerates the recognized options for the supervisor, the two query
// agents, and the session store.
//
// # Fields
//
//   - AgentTimeout: Per-agent call budget. A call exceeding it is treated as
//     a failed dispatch with reason "timeout"; there is no retry.
//   - TopKPassages: Bound on similarity-search results per retrieval.
//   - ContextWindowTurns: How many recent turns are loaded as context for
//     classification and agent prompts.
//   - MinRelevance: Certainty threshold below which retrieved passages are
//     discarded. When nothing clears it the retrieval agent reports
//     "no content found" rather than an error.
//   - SQLRowLimit: Row cap applied to structured queries.
//   - Retention: Session retention policy, see RetentionPolicy.
type Config struct {
	AgentTimeout       time.Duration
	TopKPassages       int
	ContextWindowTurns int
	MinRelevance       float64
	SQLRowLimit        int
	Retention          RetentionPolicy
}

// Default returns the stock configuration used when no overrides are set.
func Default() Config {
	return Config{
		AgentTimeout:       30 * time.Second,
		TopKPassages:       5,
		ContextWindowTurns: 5,
		MinRelevance:       0.30,
		SQLRowLimit:        10,
		Retention: RetentionPolicy{
			MaxAge:   30 * 24 * time.Hour,
			MaxTurns: 100,
		},
	}
}

// FromEnv builds a Config from environment variables, falling back to
// Default for anything unset or unparseable. Unparseable values are logged
// and skipped rather than failing startup.
//
// Recognized variables: AGENT_TIMEOUT_SECONDS, RAG_TOP_K_PASSAGES,
// CONTEXT_WINDOW_TURNS, RAG_MIN_RELEVANCE, SQL_ROW_LIMIT,
// SESSION_MAX_AGE_HOURS, SESSION_MAX_TURNS.
func FromEnv() Config {
	cfg := Default()

	if v, ok := envInt("AGENT_TIMEOUT_SECONDS"); ok {
		cfg.AgentTimeout = time.Duration(v) * time.Second
	}
	if v, ok := envInt("RAG_TOP_K_PASSAGES"); ok {
		cfg.TopKPassages = v
	}
	if v, ok := envInt("CONTEXT_WINDOW_TURNS"); ok {
		cfg.ContextWindowTurns = v
	}
	if v, ok := envFloat("RAG_MIN_RELEVANCE"); ok {
		cfg.MinRelevance = v
	}
	if v, ok := envInt("SQL_ROW_LIMIT"); ok {
		cfg.SQLRowLimit = v
	}
	if v, ok := envInt("SESSION_MAX_AGE_HOURS"); ok {
		cfg.Retention.MaxAge = time.Duration(v) * time.Hour
	}
	if v, ok := envInt("SESSION_MAX_TURNS"); ok {
		cfg.Retention.MaxTurns = v
	}

	return cfg
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		slog.Warn("Ignoring invalid config value", "var", name, "value", raw)
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		slog.Warn("Ignoring invalid config value", "var", name, "value", raw)
		return 0, false
	}
	return v, true
}
