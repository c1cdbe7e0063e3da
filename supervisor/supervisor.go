// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package supervisor routes chat questions to the query agents and merges
// their results into one answer.
//
// # Description
//
// Each chat request runs an explicit state machine:
//
//	received -> classified -> dispatching -> merging -> responded
//
// received loads the recent turns as context, classified picks the target
// agents, dispatching invokes them concurrently under per-agent timeouts,
// merging combines whatever settled, and responded appends the user and
// assistant turns to the session store. The machine always reaches
// responded; total agent failure still responds, with the turn tagged as
// carrying no contributing agent. Only a session store failure aborts the
// request.
//
// # Thread Safety
//
// Supervisor is stateless across requests and safe for concurrent use; the
// session store serializes same-session writes.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edgeroom/eventdesk/agents"
	"github.com/edgeroom/eventdesk/config"
	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/observability"
	"github.com/edgeroom/eventdesk/session"
)

var tracer = otel.Tracer("eventdesk.supervisor")

// state names the steps of the chat state machine. Used for tracing and
// logging only; the flow itself is the sequence of calls in Chat.
type state string

const (
	stateReceived    state = "received"
	stateClassified  state = "classified"
	stateDispatching state = "dispatching"
	stateMerging     state = "merging"
	stateResponded   state = "responded"
)

// ChatResult is what the conversation interface returns for one question.
type ChatResult struct {
	Response     string
	Contributing []datatypes.AgentSource
	TurnCount    int

	// Outcomes is populated only when the caller asked for diagnostics.
	Outcomes []datatypes.AgentOutcome
}

// Supervisor owns the routing policy, the agent registry, and the session
// store. Construct with New; the zero value is not usable.
type Supervisor struct {
	classifier Classifier
	agents     map[datatypes.AgentSource]agents.Agent
	store      session.Store
	cfg        config.Config
}

// New builds a Supervisor over the given agents. A nil classifier selects
// the keyword default.
func New(classifier Classifier, agentList []agents.Agent, store session.Store, cfg config.Config) *Supervisor {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	registry := make(map[datatypes.AgentSource]agents.Agent, len(agentList))
	for _, a := range agentList {
		registry[a.Source()] = a
	}
	return &Supervisor{
		classifier: classifier,
		agents:     registry,
		store:      store,
		cfg:        cfg,
	}
}

// Chat answers one question in the scope of a session. The returned error
// is non-nil only for session store failures; agent failures degrade into
// the response text instead.
func (s *Supervisor) Chat(ctx context.Context, sessionID, text string, diagnostics bool) (ChatResult, error) {
	ctx, span := tracer.Start(ctx, "Supervisor.Chat",
		trace.WithAttributes(attribute.String("chat.session_id", sessionID)),
	)
	defer span.End()

	// received: snapshot the context window.
	history, err := s.contextWindow(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history load failed")
		return ChatResult{}, err
	}
	s.logState(sessionID, stateReceived, "turns", len(history))

	// classified: pick the target set.
	targets := s.classifier.Classify(ctx, text, history)
	label := targetsLabel(targets)
	observability.RoutingDecisionsTotal.WithLabelValues(label).Inc()
	span.SetAttributes(attribute.String("chat.targets", label))
	s.logState(sessionID, stateClassified, "targets", label)

	// dispatching: concurrent, independent, joined before merge.
	results := s.dispatch(ctx, targets, text, history)
	s.logState(sessionID, stateDispatching, "settled", len(results))

	// merging: pure combination of whatever settled.
	outcome := merge(results)
	s.logState(sessionID, stateMerging, "contributing", targetsLabel(outcome.Contributing))
	if outcome.AllFailed {
		span.SetStatus(codes.Error, "all agents failed")
		observability.ChatRequestsTotal.WithLabelValues("failed").Inc()
	} else if len(outcome.Contributing) < len(targets) {
		observability.ChatRequestsTotal.WithLabelValues("degraded").Inc()
	} else {
		observability.ChatRequestsTotal.WithLabelValues("answered").Inc()
	}

	// responded: persist the exchange, then return.
	turnCount, err := s.persist(ctx, sessionID, text, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session append failed")
		return ChatResult{}, err
	}
	s.logState(sessionID, stateResponded, "turn_count", turnCount)

	result := ChatResult{
		Response:     outcome.Response,
		Contributing: outcome.Contributing,
		TurnCount:    turnCount,
	}
	if diagnostics {
		for _, r := range results {
			result.Outcomes = append(result.Outcomes, datatypes.AgentOutcome{
				Source:  r.Source,
				Success: r.Success,
				Reason:  r.Reason,
			})
		}
	}
	return result, nil
}

// contextWindow materializes the last-n turns used for classification and
// agent prompts.
func (s *Supervisor) contextWindow(ctx context.Context, sessionID string) ([]datatypes.Turn, error) {
	seq, err := s.store.LastN(ctx, sessionID, s.cfg.ContextWindowTurns)
	if err != nil {
		return nil, err
	}
	var history []datatypes.Turn
	for turn := range seq {
		history = append(history, turn)
	}
	return history, nil
}

// dispatch invokes every target concurrently and joins before returning.
// Each dispatch carries its own timeout; a timed-out agent settles as a
// timeout failure and is never retried within the request.
func (s *Supervisor) dispatch(ctx context.Context, targets []datatypes.AgentSource, text string, history []datatypes.Turn) []datatypes.AgentResult {
	type indexed struct {
		pos    int
		result datatypes.AgentResult
	}
	settled := make(chan indexed, len(targets))

	for i, target := range targets {
		agent, ok := s.agents[target]
		if !ok {
			settled <- indexed{i, datatypes.AgentResult{
				Source:  target,
				Success: false,
				Reason:  datatypes.ReasonAgentUnreachable,
			}}
			continue
		}
		go func(pos int, a agents.Agent) {
			settled <- indexed{pos, s.dispatchOne(ctx, a, text, history)}
		}(i, agent)
	}

	results := make([]datatypes.AgentResult, len(targets))
	for range targets {
		r := <-settled
		results[r.pos] = r.result
	}
	return results
}

func (s *Supervisor) dispatchOne(ctx context.Context, a agents.Agent, text string, history []datatypes.Turn) datatypes.AgentResult {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AgentTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan datatypes.AgentResult, 1)
	go func() {
		done <- a.Query(ctx, text, history)
	}()

	var result datatypes.AgentResult
	select {
	case result = <-done:
	case <-ctx.Done():
		// The agent goroutine is abandoned; it observes ctx cancellation
		// on its next I/O call.
		result = datatypes.AgentResult{
			Source:  a.Source(),
			Success: false,
			Reason:  datatypes.ReasonTimeout,
		}
	}

	observability.AgentLatencySeconds.WithLabelValues(string(a.Source())).
		Observe(time.Since(start).Seconds())
	if !result.Success {
		observability.AgentFailuresTotal.
			WithLabelValues(string(result.Source), string(result.Reason)).Inc()
		slog.Warn("Agent dispatch failed",
			"agent", result.Source, "reason", result.Reason)
	}
	return result
}

// persist appends the user turn and the assistant turn in order. A total
// failure is persisted too, tagged with no contributing agent.
func (s *Supervisor) persist(ctx context.Context, sessionID, text string, outcome mergeOutcome) (int, error) {
	if _, err := s.store.Append(ctx, sessionID, datatypes.NewUserTurn(text)); err != nil {
		return 0, fmt.Errorf("appending user turn: %w", err)
	}
	if _, err := s.store.Append(ctx, sessionID, datatypes.NewAssistantTurn(outcome.Response, outcome.Contributing)); err != nil {
		return 0, fmt.Errorf("appending assistant turn: %w", err)
	}
	stats, err := s.store.Stats(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("reading session stats: %w", err)
	}
	return stats.TurnCount, nil
}

func (s *Supervisor) logState(sessionID string, st state, key string, value any) {
	slog.Debug("Chat state transition", "session_id", sessionID, "state", string(st), key, value)
}
