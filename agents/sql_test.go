// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/edgeroom/eventdesk/config"
	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/llm"
)

// =============================================================================
// Test Setup
// =============================================================================

// stubLLM returns a canned answer for every call.
type stubLLM struct {
	answer string
	err    error
}

var _ llm.LLMClient = (*stubLLM)(nil)

func (s *stubLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return s.answer, s.err
}

func (s *stubLLM) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (string, error) {
	return s.answer, s.err
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE events (
			id INTEGER PRIMARY KEY,
			post_title TEXT,
			location TEXT,
			event_dates TEXT
		)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO events (post_title, location, event_dates) VALUES
		('AI Summit', 'Berlin', '2024-03-01'),
		('Data Forum', 'Lisbon', '2024-05-12')`)
	require.NoError(t, err)
	return db
}

func newSQLAgent(t *testing.T, db *sql.DB, client llm.LLMClient) *StructuredQueryAgent {
	t.Helper()
	return NewStructuredQueryAgent(db, client, config.Default())
}

// =============================================================================
// Query
// =============================================================================

func TestStructuredQueryAgent_FormatsRows(t *testing.T) {
	db := newTestDB(t)
	agent := newSQLAgent(t, db, &stubLLM{answer: "SELECT post_title, location FROM events ORDER BY post_title"})

	result := agent.Query(context.Background(), "list events", nil)

	require.True(t, result.Success)
	assert.Equal(t, datatypes.SourceSQL, result.Source)
	assert.Contains(t, result.Payload, "Found 2 matching records")
	assert.Contains(t, result.Payload, "post_title: AI Summit")
	assert.Contains(t, result.Payload, "location: Lisbon")
}

func TestStructuredQueryAgent_EmptyResultIsInformativeSuccess(t *testing.T) {
	db := newTestDB(t)
	agent := newSQLAgent(t, db, &stubLLM{answer: "SELECT post_title FROM events WHERE location = 'Tokyo'"})

	result := agent.Query(context.Background(), "events in Tokyo", nil)

	assert.True(t, result.Success)
	assert.Equal(t, datatypes.ReasonEmptyResult, result.Reason)
	assert.Equal(t, EmptyResultMessage, result.Payload)
}

func TestStructuredQueryAgent_StripsMarkdownFences(t *testing.T) {
	db := newTestDB(t)
	agent := newSQLAgent(t, db, &stubLLM{answer: "```sql\nSELECT post_title FROM events\n```"})

	result := agent.Query(context.Background(), "list events", nil)
	assert.True(t, result.Success)
}

func TestStructuredQueryAgent_TrailingSemicolonStillExecutes(t *testing.T) {
	// Models commonly terminate the statement; the semicolon must be gone
	// before the LIMIT clause is appended or execution fails.
	db := newTestDB(t)
	agent := newSQLAgent(t, db, &stubLLM{answer: "SELECT post_title FROM events;"})

	result := agent.Query(context.Background(), "list events", nil)

	require.True(t, result.Success)
	assert.Contains(t, result.Payload, "Found 2 matching records")
}

func TestStructuredQueryAgent_RejectsMutatingStatement(t *testing.T) {
	db := newTestDB(t)
	agent := newSQLAgent(t, db, &stubLLM{answer: "DELETE FROM events"})

	result := agent.Query(context.Background(), "remove everything", nil)

	assert.False(t, result.Success)
	assert.Equal(t, datatypes.ReasonMalformedQuery, result.Reason)

	// The guard must trip before execution: rows are untouched.
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestStructuredQueryAgent_EmptyQuestionIsMalformed(t *testing.T) {
	db := newTestDB(t)
	agent := newSQLAgent(t, db, &stubLLM{answer: "SELECT 1"})

	result := agent.Query(context.Background(), "   ", nil)
	assert.False(t, result.Success)
	assert.Equal(t, datatypes.ReasonMalformedQuery, result.Reason)
}

func TestStructuredQueryAgent_LLMFailureIsUnreachable(t *testing.T) {
	db := newTestDB(t)
	agent := newSQLAgent(t, db, &stubLLM{err: errors.New("connection refused")})

	result := agent.Query(context.Background(), "list events", nil)
	assert.False(t, result.Success)
	assert.Equal(t, datatypes.ReasonAgentUnreachable, result.Reason)
}

func TestStructuredQueryAgent_TimeoutReported(t *testing.T) {
	db := newTestDB(t)
	agent := newSQLAgent(t, db, &stubLLM{err: context.DeadlineExceeded})

	result := agent.Query(context.Background(), "list events", nil)
	assert.False(t, result.Success)
	assert.Equal(t, datatypes.ReasonTimeout, result.Reason)
}

func TestStructuredQueryAgent_ExecutionErrorReported(t *testing.T) {
	db := newTestDB(t)
	agent := newSQLAgent(t, db, &stubLLM{answer: "SELECT no_such_column FROM events"})

	result := agent.Query(context.Background(), "list events", nil)
	assert.False(t, result.Success)
	assert.Equal(t, datatypes.ReasonExecutionError, result.Reason)
}

func TestStructuredQueryAgent_RowLimitApplied(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 30; i++ {
		_, err := db.Exec(`INSERT INTO events (post_title) VALUES ('Bulk ' || ?)`, i)
		require.NoError(t, err)
	}
	cfg := config.Default()
	cfg.SQLRowLimit = 3
	agent := NewStructuredQueryAgent(db, &stubLLM{answer: "SELECT post_title FROM events"}, cfg)

	result := agent.Query(context.Background(), "list events", nil)
	require.True(t, result.Success)
	assert.Contains(t, result.Payload, "Found 3 matching records")
}

// =============================================================================
// Read-Only Guard
// =============================================================================

func TestGuardReadOnly(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		wantErr   bool
	}{
		{"plain select", "SELECT * FROM events", false},
		{"cte select", "WITH recent AS (SELECT 1) SELECT * FROM recent", false},
		{"trailing semicolon", "SELECT 1;", false},
		{"lowercase select", "select post_title from events", false},
		{"empty", "   ", true},
		{"insert", "INSERT INTO events VALUES (1)", true},
		{"update", "UPDATE events SET post_title = 'x'", true},
		{"delete", "DELETE FROM events", true},
		{"drop", "DROP TABLE events", true},
		{"pragma", "PRAGMA writable_schema = ON", true},
		{"attach", "ATTACH DATABASE 'x' AS other", true},
		{"multiple statements", "SELECT 1; DELETE FROM events", true},
		{"mutating subclause", "SELECT 1 WHERE EXISTS (SELECT 1); DROP TABLE events", true},
		{"not a select", "EXPLAIN QUERY PLAN SELECT 1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guardReadOnly(tt.statement)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGuardReadOnly_KeywordInStringLiteralStillRejected(t *testing.T) {
	// Conservative by contract: word matches are rejected even when quoted.
	err := guardReadOnly("SELECT * FROM events WHERE post_title = 'drop everything'")
	assert.Error(t, err)
}

func TestEnsureLimit(t *testing.T) {
	agent := &StructuredQueryAgent{rowLimit: 10}

	assert.Equal(t, "SELECT 1 LIMIT 10", agent.ensureLimit("SELECT 1"))
	assert.Equal(t, "SELECT 1 LIMIT 5", agent.ensureLimit("SELECT 1 LIMIT 5"))
	assert.Equal(t, "SELECT 1 limit 2", agent.ensureLimit("SELECT 1 limit 2"))
}
