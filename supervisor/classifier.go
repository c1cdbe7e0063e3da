// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supervisor

import (
	"context"
	"strings"

	"github.com/edgeroom/eventdesk/datatypes"
)

// Classifier decides which agents a question is dispatched to. It reads the
// recent turns for disambiguation but never mutates them; classification is
// otherwise stateless between calls.
type Classifier interface {
	// Classify returns the non-empty target set for the question.
	Classify(ctx context.Context, text string, history []datatypes.Turn) []datatypes.AgentSource
}

// Keyword vocabularies for the default classifier. Scoring is a simple
// substring count over the lowercased question.
var (
	structuredKeywords = []string{
		"count", "how many", "number of", "total", "sum",
		"list", "show", "display", "find all",
		"event", "events", "article", "articles",
		"date", "time", "when", "where", "location",
		"author", "user", "company", "contact",
		"recent", "latest", "oldest", "first", "last",
		"filter", "search by", "with", "having",
	}

	semanticKeywords = []string{
		"about", "explain", "tell me", "what is", "what are",
		"how does", "how do", "why", "because",
		"describe", "definition", "meaning",
		"concept", "idea", "topic", "subject",
		"similar", "related", "like", "compare",
		"information", "details", "content",
		"understand", "learn", "know",
	}

	combinedKeywords = []string{
		"and", "also", "plus", "additionally",
		"both", "together", "combined",
		"as well as", "along with",
		"comprehensive", "complete", "full",
	}
)

// KeywordClassifier is the default routing policy: keyword scoring with
// "both" as the ambiguity fallback. Dispatching an extra agent is cheaper
// than silently dropping a capability.
type KeywordClassifier struct{}

var _ Classifier = KeywordClassifier{}

// Classify implements Classifier.
func (KeywordClassifier) Classify(_ context.Context, text string, _ []datatypes.Turn) []datatypes.AgentSource {
	lower := strings.ToLower(text)

	structured := scoreKeywords(lower, structuredKeywords)
	semantic := scoreKeywords(lower, semanticKeywords)
	combined := scoreKeywords(lower, combinedKeywords)

	switch {
	case combined > 0 && (structured > 0 || semantic > 0):
		return []datatypes.AgentSource{datatypes.SourceSQL, datatypes.SourceRAG}
	case structured > 0 && semantic > 0:
		return []datatypes.AgentSource{datatypes.SourceSQL, datatypes.SourceRAG}
	case structured > semantic:
		return []datatypes.AgentSource{datatypes.SourceSQL}
	case semantic > structured:
		return []datatypes.AgentSource{datatypes.SourceRAG}
	default:
		// No signal either way: dispatch both.
		return []datatypes.AgentSource{datatypes.SourceSQL, datatypes.SourceRAG}
	}
}

func scoreKeywords(lower string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	return score
}

// targetsLabel renders a target set as a stable metrics label.
func targetsLabel(targets []datatypes.AgentSource) string {
	if len(targets) == 2 {
		return "both"
	}
	if len(targets) == 1 {
		return string(targets[0])
	}
	return "none"
}
