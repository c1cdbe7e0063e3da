// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supervisor

import (
	"strings"

	"github.com/edgeroom/eventdesk/datatypes"
)

// User-facing messages for degraded outcomes. Callers never see raw error
// detail; failures map to one of these.
const (
	// ApologyMessage is the exact response when every dispatched agent
	// failed.
	ApologyMessage = "I'm sorry, I wasn't able to answer your question right now. Please try again in a moment."

	// SQLUnavailableMessage is the response when the only dispatched agent
	// was the structured query agent and it failed.
	SQLUnavailableMessage = "I'm sorry, the database lookup service is currently unavailable. Please try again in a moment."

	// RAGUnavailableMessage is the response when the only dispatched agent
	// was the semantic retrieval agent and it failed.
	RAGUnavailableMessage = "I'm sorry, the article search service is currently unavailable. Please try again in a moment."
)

// mergeOutcome is the result of the merge step: the response text, the
// agents whose payloads contributed to it, and whether every dispatch
// failed.
type mergeOutcome struct {
	Response     string
	Contributing []datatypes.AgentSource
	AllFailed    bool
}

// merge combines settled agent results into a single response. It is a pure
// function of its inputs:
//
//   - one target, success: its payload verbatim
//   - one target, failure: an apology naming the unavailable capability
//   - two targets, both succeed: structured facts first, then the
//     contextual answer, never interleaved
//   - two targets, one fails: the succeeding payload alone, with no trace
//     of the failure in the text
//   - all targets fail: exactly ApologyMessage, contributing set empty
//
// Informative outcomes (empty_result, no_relevant_passages) carry
// Success=true and merge like any other success.
func merge(results []datatypes.AgentResult) mergeOutcome {
	var succeeded []datatypes.AgentResult
	for _, r := range results {
		if r.Success {
			succeeded = append(succeeded, r)
		}
	}

	if len(succeeded) == 0 {
		if len(results) == 1 {
			return mergeOutcome{Response: unavailableMessage(results[0].Source), AllFailed: true}
		}
		return mergeOutcome{Response: ApologyMessage, AllFailed: true}
	}

	// Structured facts lead; contextual explanation follows. Contribution
	// is keyed on success, not payload length, so a succeeded agent with an
	// empty payload is still credited.
	var sqlPart, ragPart string
	var sqlOK, ragOK bool
	for _, r := range succeeded {
		switch r.Source {
		case datatypes.SourceSQL:
			sqlPart, sqlOK = r.Payload, true
		case datatypes.SourceRAG:
			ragPart, ragOK = r.Payload, true
		}
	}

	var contributing []datatypes.AgentSource
	var parts []string
	if sqlOK {
		contributing = append(contributing, datatypes.SourceSQL)
		if sqlPart != "" {
			parts = append(parts, sqlPart)
		}
	}
	if ragOK {
		contributing = append(contributing, datatypes.SourceRAG)
		if ragPart != "" {
			parts = append(parts, ragPart)
		}
	}

	return mergeOutcome{Response: strings.Join(parts, "\n\n"), Contributing: contributing}
}

func unavailableMessage(source datatypes.AgentSource) string {
	switch source {
	case datatypes.SourceSQL:
		return SQLUnavailableMessage
	case datatypes.SourceRAG:
		return RAGUnavailableMessage
	default:
		return ApologyMessage
	}
}
