// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agents provides the two query capabilities behind the supervisor:
// structured lookups over the relational store and semantic retrieval over
// the article index.
//
// # Description
//
// Both agents implement the same Agent interface; the supervisor holds a
// mapping from routing target to implementation and never branches on the
// concrete type. Agents are stateless across requests (the only state a
// query sees is the context slice passed in) and encode every failure in
// the returned AgentResult rather than an error, so the merge step can
// compensate uniformly.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgeroom/eventdesk/datatypes"
)

// Agent is the polymorphic query capability contract.
type Agent interface {
	// Source identifies the capability for routing and audit tags.
	Source() datatypes.AgentSource

	// Query answers text using recent turns as disambiguation context.
	// The context may be empty. Failures are carried in the result; the
	// call itself never mutates anything.
	Query(ctx context.Context, text string, history []datatypes.Turn) datatypes.AgentResult
}

// renderHistory formats recent turns for inclusion in an agent prompt.
// Returns the empty string for empty history.
func renderHistory(history []datatypes.Turn) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, turn := range history {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}

func failure(source datatypes.AgentSource, reason datatypes.FailureReason) datatypes.AgentResult {
	return datatypes.AgentResult{Source: source, Success: false, Reason: reason}
}

func success(source datatypes.AgentSource, payload string) datatypes.AgentResult {
	return datatypes.AgentResult{Source: source, Success: true, Payload: payload}
}
