// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// FailureReason classifies why an agent dispatch did not produce a usable
// answer. The supervisor maps reasons to user-readable sentences; callers
// never see internal error detail.
type FailureReason string

const (
	// ReasonMalformedQuery is reported when the structured agent produced a
	// statement that was rejected before execution (mutating SQL, multiple
	// statements, unparseable output).
	ReasonMalformedQuery FailureReason = "malformed_query"

	// ReasonExecutionError is reported when a structured query failed during
	// execution against the relational store.
	ReasonExecutionError FailureReason = "execution_error"

	// ReasonEmptyResult marks a structured query that matched zero rows.
	// This is an informative outcome, not a failure.
	ReasonEmptyResult FailureReason = "empty_result"

	// ReasonRetrievalError is reported when similarity search or query
	// embedding failed.
	ReasonRetrievalError FailureReason = "retrieval_error"

	// ReasonNoRelevantPassages marks a retrieval where nothing cleared the
	// relevance threshold. This is an informative outcome, not a failure.
	ReasonNoRelevantPassages FailureReason = "no_relevant_passages"

	// ReasonSynthesisError is reported when answer generation over the
	// retrieved passages failed.
	ReasonSynthesisError FailureReason = "synthesis_error"

	// ReasonTimeout marks a dispatch that exceeded its configured budget.
	ReasonTimeout FailureReason = "timeout"

	// ReasonAgentUnreachable marks a dispatch that never reached its
	// backing service (LLM, store, index).
	ReasonAgentUnreachable FailureReason = "agent_unreachable"
)

// AgentResult is the outcome of one agent dispatch. It is ephemeral:
// produced per dispatch, consumed by the merge step, and never persisted
// independently of the resulting turn.
//
// Success with a non-empty Reason (empty_result, no_relevant_passages)
// means "nothing found": a valid, informative outcome the merge step
// passes through rather than compensating for.
type AgentResult struct {
	Source  AgentSource
	Success bool
	Payload string
	Reason  FailureReason
}

// AgentOutcome is the diagnostics view of an AgentResult, returned to
// callers that set the diagnostics flag on a chat request.
type AgentOutcome struct {
	Source  AgentSource   `json:"source"`
	Success bool          `json:"success"`
	Reason  FailureReason `json:"reason,omitempty"`
}
