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
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeroom/eventdesk/config"
	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/vectorstore"
)

// =============================================================================
// Test Setup
// =============================================================================

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, s.err
}

type stubRetriever struct {
	passages []vectorstore.Passage
	err      error
	gotTopK  int
}

func (s *stubRetriever) Search(ctx context.Context, vector []float32, topK int) ([]vectorstore.Passage, error) {
	s.gotTopK = topK
	return s.passages, s.err
}

func passage(title string, certainty float64) vectorstore.Passage {
	return vectorstore.Passage{
		Content:   "Body of " + title,
		Title:     title,
		Author:    "Jordan Reyes",
		SourceID:  "42",
		Certainty: certainty,
	}
}

func newRAGAgent(embedder vectorstore.Embedder, retriever vectorstore.Retriever, client *stubLLM) *SemanticRetrievalAgent {
	return NewSemanticRetrievalAgent(embedder, retriever, client, config.Default())
}

// =============================================================================
// Query
// =============================================================================

func TestSemanticRetrievalAgent_SynthesizesWithCitations(t *testing.T) {
	retriever := &stubRetriever{passages: []vectorstore.Passage{
		passage("Grid Storage Advances", 0.91),
		passage("Battery Chemistry Primer", 0.74),
	}}
	agent := newRAGAgent(&stubEmbedder{vector: []float32{0.1}}, retriever,
		&stubLLM{answer: "Recent articles cover grid-scale storage."})

	result := agent.Query(context.Background(), "what do the articles say about storage?", nil)

	require.True(t, result.Success)
	assert.Equal(t, datatypes.SourceRAG, result.Source)
	assert.Contains(t, result.Payload, "Recent articles cover grid-scale storage.")
	assert.Contains(t, result.Payload, "Sources:")
	assert.Contains(t, result.Payload, "Grid Storage Advances (Jordan Reyes)")
	assert.Contains(t, result.Payload, "Battery Chemistry Primer")
	assert.Equal(t, config.Default().TopKPassages, retriever.gotTopK)
}

func TestSemanticRetrievalAgent_FiltersBelowRelevanceFloor(t *testing.T) {
	retriever := &stubRetriever{passages: []vectorstore.Passage{
		passage("Barely Related", 0.10),
		passage("Also Off Topic", 0.05),
	}}
	agent := newRAGAgent(&stubEmbedder{vector: []float32{0.1}}, retriever, &stubLLM{answer: "unused"})

	result := agent.Query(context.Background(), "something obscure", nil)

	assert.True(t, result.Success)
	assert.Equal(t, datatypes.ReasonNoRelevantPassages, result.Reason)
	assert.Equal(t, NoRelevantPassagesMessage, result.Payload)
}

func TestSemanticRetrievalAgent_NoPassagesIsInformativeSuccess(t *testing.T) {
	agent := newRAGAgent(&stubEmbedder{vector: []float32{0.1}}, &stubRetriever{}, &stubLLM{answer: "unused"})

	result := agent.Query(context.Background(), "anything", nil)
	assert.True(t, result.Success)
	assert.Equal(t, datatypes.ReasonNoRelevantPassages, result.Reason)
}

func TestSemanticRetrievalAgent_EmbeddingFailureIsRetrievalError(t *testing.T) {
	agent := newRAGAgent(&stubEmbedder{err: errors.New("embedding service down")}, &stubRetriever{}, &stubLLM{})

	result := agent.Query(context.Background(), "anything", nil)
	assert.False(t, result.Success)
	assert.Equal(t, datatypes.ReasonRetrievalError, result.Reason)
}

func TestSemanticRetrievalAgent_SearchFailureIsRetrievalError(t *testing.T) {
	agent := newRAGAgent(&stubEmbedder{vector: []float32{0.1}},
		&stubRetriever{err: errors.New("index offline")}, &stubLLM{})

	result := agent.Query(context.Background(), "anything", nil)
	assert.False(t, result.Success)
	assert.Equal(t, datatypes.ReasonRetrievalError, result.Reason)
}

func TestSemanticRetrievalAgent_SynthesisFailureReported(t *testing.T) {
	retriever := &stubRetriever{passages: []vectorstore.Passage{passage("Relevant", 0.88)}}
	agent := newRAGAgent(&stubEmbedder{vector: []float32{0.1}}, retriever,
		&stubLLM{err: errors.New("model overloaded")})

	result := agent.Query(context.Background(), "anything", nil)
	assert.False(t, result.Success)
	assert.Equal(t, datatypes.ReasonSynthesisError, result.Reason)
}

func TestSemanticRetrievalAgent_TimeoutReported(t *testing.T) {
	agent := newRAGAgent(&stubEmbedder{err: context.DeadlineExceeded}, &stubRetriever{}, &stubLLM{})

	result := agent.Query(context.Background(), "anything", nil)
	assert.False(t, result.Success)
	assert.Equal(t, datatypes.ReasonTimeout, result.Reason)
}

func TestCitations_DeduplicatesTitles(t *testing.T) {
	passages := []vectorstore.Passage{
		passage("Same Article", 0.9),
		passage("Same Article", 0.8),
		{Title: "Other", Certainty: 0.7},
	}

	got := citations(passages)
	assert.Equal(t, "Sources:\n- Same Article (Jordan Reyes)\n- Other", got)
}

func TestTruncatePassage_KeepsRuneBoundaries(t *testing.T) {
	// Two-byte runes with an odd byte limit: a naive byte slice would cut
	// mid-sequence and feed invalid UTF-8 into the prompt.
	long := strings.Repeat("é", 300)

	got := truncatePassage(long, 501)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 250)+"...", got)

	short := "plain ascii"
	assert.Equal(t, short, truncatePassage(short, 501))
}
