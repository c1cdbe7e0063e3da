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
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edgeroom/eventdesk/config"
	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/llm"
)

var sqlTracer = otel.Tracer("eventdesk.agents.sql")

// EmptyResultMessage is the payload of a structured query that matched zero
// rows. It is a successful, informative outcome, not a failure.
const EmptyResultMessage = "no matching records"

const sqlSystemPrompt = `You are a specialized SQL agent for querying an events and articles database.

DATABASE SCHEMA:
%s

INSTRUCTIONS:
1. Produce exactly one syntactically correct SQLite SELECT statement answering the question
2. Only query relevant columns, never SELECT *
3. Order results by relevance (recent dates for events, relevance for articles)
4. Use the conversation context to resolve references like "the first one"
5. Respond with the SQL statement only, no explanation, no markdown fences

RESTRICTIONS:
- SELECT statements only, never INSERT, UPDATE, DELETE, DROP or any schema change
- A single statement, no semicolon-separated batches`

// mutatingKeywords are rejected before execution regardless of position in
// the statement. ATTACH and PRAGMA are included because they escape the
// read-only contract without being DML.
var mutatingKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|replace|truncate|attach|detach|pragma|vacuum|reindex)\b`)

// StructuredQueryAgent answers questions via deterministic lookups over the
// relational events/articles store. It translates natural language to a
// single SELECT with the LLM, rejects anything mutating before execution,
// and formats the rows as human-readable text.
type StructuredQueryAgent struct {
	db       *sql.DB
	llm      llm.LLMClient
	rowLimit int

	schemaOnce sync.Once
	schema     string
	schemaErr  error
}

var _ Agent = (*StructuredQueryAgent)(nil)

// NewStructuredQueryAgent builds the agent over an open, read-only database
// handle.
func NewStructuredQueryAgent(db *sql.DB, llmClient llm.LLMClient, cfg config.Config) *StructuredQueryAgent {
	return &StructuredQueryAgent{
		db:       db,
		llm:      llmClient,
		rowLimit: cfg.SQLRowLimit,
	}
}

// Source implements Agent.
func (a *StructuredQueryAgent) Source() datatypes.AgentSource {
	return datatypes.SourceSQL
}

// Query implements Agent.
func (a *StructuredQueryAgent) Query(ctx context.Context, text string, history []datatypes.Turn) datatypes.AgentResult {
	ctx, span := sqlTracer.Start(ctx, "StructuredQueryAgent.Query")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		span.SetStatus(codes.Error, "empty query text")
		return failure(datatypes.SourceSQL, datatypes.ReasonMalformedQuery)
	}

	schema, err := a.schemaDescription(ctx)
	if err != nil {
		slog.Error("Failed to introspect database schema", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema introspection failed")
		return failure(datatypes.SourceSQL, datatypes.ReasonExecutionError)
	}

	statement, reason, ok := a.translate(ctx, schema, text, history)
	if !ok {
		span.SetStatus(codes.Error, string(reason))
		return failure(datatypes.SourceSQL, reason)
	}
	span.SetAttributes(attribute.String("sql.statement", statement))

	rows, cols, err := a.execute(ctx, statement)
	if err != nil {
		slog.Error("Structured query failed", "error", err, "statement", statement)
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "timeout")
			return failure(datatypes.SourceSQL, datatypes.ReasonTimeout)
		}
		span.SetStatus(codes.Error, "execution failed")
		return failure(datatypes.SourceSQL, datatypes.ReasonExecutionError)
	}

	if len(rows) == 0 {
		span.SetAttributes(attribute.Int("sql.rows", 0))
		result := success(datatypes.SourceSQL, EmptyResultMessage)
		result.Reason = datatypes.ReasonEmptyResult
		return result
	}

	span.SetAttributes(attribute.Int("sql.rows", len(rows)))
	return success(datatypes.SourceSQL, formatRows(cols, rows))
}

// translate asks the LLM for a single SELECT statement and applies the
// read-only guard. A mutating or multi-statement answer is classified as
// malformed_query and never executed.
func (a *StructuredQueryAgent) translate(ctx context.Context, schema, text string, history []datatypes.Turn) (string, datatypes.FailureReason, bool) {
	prompt := text
	if contextBlock := renderHistory(history); contextBlock != "" {
		prompt = contextBlock + "\nQuestion: " + text
	}

	answer, err := a.llm.Chat(ctx, []datatypes.Message{
		{Role: "system", Content: fmt.Sprintf(sqlSystemPrompt, schema)},
		{Role: "user", Content: prompt},
	}, llm.GenerationParams{})
	if err != nil {
		slog.Error("SQL translation failed", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return "", datatypes.ReasonTimeout, false
		}
		return "", datatypes.ReasonAgentUnreachable, false
	}

	statement := stripFences(answer)
	if err := guardReadOnly(statement); err != nil {
		slog.Warn("Rejected generated statement", "reason", err, "statement", statement)
		return "", datatypes.ReasonMalformedQuery, false
	}

	return a.ensureLimit(statement), "", true
}

func (a *StructuredQueryAgent) execute(ctx context.Context, statement string) ([][]string, []string, error) {
	rows, err := a.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]string
	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		record := make([]string, len(cols))
		for i, v := range raw {
			if v.Valid {
				record[i] = v.String
			}
		}
		out = append(out, record)
	}
	return out, cols, rows.Err()
}

// schemaDescription introspects the table definitions once and caches them
// for the lifetime of the agent.
func (a *StructuredQueryAgent) schemaDescription(ctx context.Context) (string, error) {
	a.schemaOnce.Do(func() {
		rows, err := a.db.QueryContext(ctx,
			`SELECT sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
		if err != nil {
			a.schemaErr = err
			return
		}
		defer rows.Close()

		var defs []string
		for rows.Next() {
			var def sql.NullString
			if err := rows.Scan(&def); err != nil {
				a.schemaErr = err
				return
			}
			if def.Valid {
				defs = append(defs, def.String)
			}
		}
		a.schemaErr = rows.Err()
		a.schema = strings.Join(defs, "\n\n")
	})
	return a.schema, a.schemaErr
}

func (a *StructuredQueryAgent) ensureLimit(statement string) string {
	if regexp.MustCompile(`(?i)\blimit\s+\d+`).MatchString(statement) {
		return statement
	}
	return fmt.Sprintf("%s LIMIT %d", statement, a.rowLimit)
}

// guardReadOnly enforces the read-only contract: exactly one statement,
// starting with SELECT or WITH, containing no mutating keyword.
func guardReadOnly(statement string) error {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(statement), ";"))
	if trimmed == "" {
		return errors.New("empty statement")
	}
	if strings.Contains(trimmed, ";") {
		return errors.New("multiple statements")
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return errors.New("not a SELECT statement")
	}
	if match := mutatingKeywords.FindString(trimmed); match != "" {
		return fmt.Errorf("mutating keyword %q", strings.ToUpper(match))
	}
	return nil
}

// stripFences removes markdown code fences and a trailing semicolon the
// model may wrap the statement in. The semicolon must go before ensureLimit
// appends a LIMIT clause, or the statement no longer parses.
func stripFences(answer string) string {
	trimmed := strings.TrimSpace(answer)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	return strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
}

// formatRows renders query results as readable text: a count line followed
// by one numbered line per row.
func formatRows(cols []string, rows [][]string) string {
	var b strings.Builder
	noun := "records"
	if len(rows) == 1 {
		noun = "record"
	}
	fmt.Fprintf(&b, "Found %d matching %s:\n", len(rows), noun)
	for i, row := range rows {
		fmt.Fprintf(&b, "%d. ", i+1)
		parts := make([]string, 0, len(cols))
		for j, col := range cols {
			if row[j] == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", col, row[j]))
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
