// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edgeroom/eventdesk/config"
	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/llm"
	"github.com/edgeroom/eventdesk/vectorstore"
)

var ragTracer = otel.Tracer("eventdesk.agents.rag")

// NoRelevantPassagesMessage is the payload when retrieval succeeds but no
// passage clears the relevance floor. Like EmptyResultMessage this is an
// informative success, not a failure.
const NoRelevantPassagesMessage = "I couldn't find any relevant articles for your query. " +
	"Try rephrasing your question or using different keywords."

const ragSystemPrompt = `You are a helpful assistant answering questions about articles.
Answer using ONLY the provided article excerpts. If the excerpts do not
contain the answer, say so plainly. Keep the answer concise and cite article
titles when you draw on them.`

// maxPassageChars bounds how much of each passage goes into the synthesis
// prompt.
const maxPassageChars = 500

// SemanticRetrievalAgent answers open-ended questions by embedding the
// query, fetching the nearest article chunks from the vector store, and
// synthesizing a grounded answer with the LLM.
type SemanticRetrievalAgent struct {
	embedder     vectorstore.Embedder
	retriever    vectorstore.Retriever
	llm          llm.LLMClient
	topK         int
	minRelevance float64
}

var _ Agent = (*SemanticRetrievalAgent)(nil)

// NewSemanticRetrievalAgent builds the agent from its three backends and the
// retrieval tuning in cfg.
func NewSemanticRetrievalAgent(embedder vectorstore.Embedder, retriever vectorstore.Retriever, llmClient llm.LLMClient, cfg config.Config) *SemanticRetrievalAgent {
	return &SemanticRetrievalAgent{
		embedder:     embedder,
		retriever:    retriever,
		llm:          llmClient,
		topK:         cfg.TopKPassages,
		minRelevance: cfg.MinRelevance,
	}
}

// Source implements Agent.
func (a *SemanticRetrievalAgent) Source() datatypes.AgentSource {
	return datatypes.SourceRAG
}

// Query implements Agent.
func (a *SemanticRetrievalAgent) Query(ctx context.Context, text string, history []datatypes.Turn) datatypes.AgentResult {
	ctx, span := ragTracer.Start(ctx, "SemanticRetrievalAgent.Query")
	defer span.End()

	vector, err := a.embedder.Embed(ctx, text)
	if err != nil {
		slog.Error("Query embedding failed", "error", err)
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "timeout")
			return failure(datatypes.SourceRAG, datatypes.ReasonTimeout)
		}
		span.SetStatus(codes.Error, "embedding failed")
		return failure(datatypes.SourceRAG, datatypes.ReasonRetrievalError)
	}

	passages, err := a.retriever.Search(ctx, vector, a.topK)
	if err != nil {
		slog.Error("Vector search failed", "error", err)
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "timeout")
			return failure(datatypes.SourceRAG, datatypes.ReasonTimeout)
		}
		span.SetStatus(codes.Error, "search failed")
		return failure(datatypes.SourceRAG, datatypes.ReasonRetrievalError)
	}

	relevant := passages[:0:0]
	for _, p := range passages {
		if p.Certainty >= a.minRelevance {
			relevant = append(relevant, p)
		}
	}
	span.SetAttributes(
		attribute.Int("rag.retrieved", len(passages)),
		attribute.Int("rag.relevant", len(relevant)),
	)

	if len(relevant) == 0 {
		result := success(datatypes.SourceRAG, NoRelevantPassagesMessage)
		result.Reason = datatypes.ReasonNoRelevantPassages
		return result
	}

	answer, err := a.synthesize(ctx, text, history, relevant)
	if err != nil {
		slog.Error("Answer synthesis failed", "error", err)
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "timeout")
			return failure(datatypes.SourceRAG, datatypes.ReasonTimeout)
		}
		span.SetStatus(codes.Error, "synthesis failed")
		return failure(datatypes.SourceRAG, datatypes.ReasonSynthesisError)
	}

	return success(datatypes.SourceRAG, answer+"\n\n"+citations(relevant))
}

func (a *SemanticRetrievalAgent) synthesize(ctx context.Context, text string, history []datatypes.Turn, passages []vectorstore.Passage) (string, error) {
	var b strings.Builder
	for i, p := range passages {
		content := truncatePassage(p.Content, maxPassageChars)
		fmt.Fprintf(&b, "Article %d: %s\n", i+1, p.Title)
		if p.Author != "" {
			fmt.Fprintf(&b, "Author: %s\n", p.Author)
		}
		fmt.Fprintf(&b, "Relevance: %.2f\n%s\n\n", p.Certainty, content)
	}

	prompt := text
	if contextBlock := renderHistory(history); contextBlock != "" {
		prompt = contextBlock + "\nQuestion: " + text
	}

	return a.llm.Chat(ctx, []datatypes.Message{
		{Role: "system", Content: ragSystemPrompt},
		{Role: "user", Content: "Article excerpts:\n\n" + b.String() + "\n" + prompt},
	}, llm.GenerationParams{})
}

// truncatePassage caps a passage at max bytes without splitting a UTF-8
// rune mid-sequence.
func truncatePassage(content string, max int) string {
	if len(content) <= max {
		return content
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// citations lists the distinct article titles that contributed to the
// answer, in retrieval order.
func citations(passages []vectorstore.Passage) string {
	seen := make(map[string]bool, len(passages))
	var b strings.Builder
	b.WriteString("Sources:")
	for _, p := range passages {
		title := p.Title
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		b.WriteString("\n- ")
		b.WriteString(title)
		if p.Author != "" {
			b.WriteString(" (" + p.Author + ")")
		}
	}
	return b.String()
}
