// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edgeroom/eventdesk/datatypes"
)

var tracer = otel.Tracer("eventdesk.vectorstore")

const articleChunkClass = "ArticleChunk"

// Passage is one ranked similarity-search hit. Certainty is Weaviate's
// normalized [0,1] score, independent of the distance metric.
type Passage struct {
	Content   string
	Title     string
	Author    string
	SourceID  string
	Certainty float64
}

// Retriever is the similarity-search contract the semantic agent consumes.
type Retriever interface {
	// Search returns up to topK passages ranked by similarity to the query
	// vector, most similar first.
	Search(ctx context.Context, vector []float32, topK int) ([]Passage, error)
}

// ChunkWriter is the insert contract the ingest pipeline consumes.
type ChunkWriter interface {
	// AddChunk stores one embedded article chunk.
	AddChunk(ctx context.Context, chunk Chunk, vector []float32) error

	// DeleteBySource removes every chunk belonging to a source article, for
	// re-ingestion.
	DeleteBySource(ctx context.Context, sourceID string) error
}

// Chunk is one article fragment headed for the index.
type Chunk struct {
	Content    string
	Title      string
	Author     string
	SourceID   string
	ChunkIndex int
}

// WeaviateStore implements Retriever and ChunkWriter over a Weaviate
// instance.
type WeaviateStore struct {
	client *weaviate.Client
}

var _ Retriever = (*WeaviateStore)(nil)
var _ ChunkWriter = (*WeaviateStore)(nil)

// NewWeaviateStore wraps the client and ensures the article schema exists.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	datatypes.EnsureWeaviateSchema(client)
	return &WeaviateStore{client: client}
}

// Search implements Retriever using a nearVector query with certainty.
func (s *WeaviateStore) Search(ctx context.Context, vector []float32, topK int) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "WeaviateStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("search.top_k", topK))

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Request certainty (always [0,1]) instead of distance, which varies by
	// metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "title"},
		{Name: "author"},
		{Name: "source_id"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(articleChunkClass).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate search failed")
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ArticleChunkQueryResponse](result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	passages := make([]Passage, 0, len(parsed.Get.ArticleChunk))
	for _, hit := range parsed.Get.ArticleChunk {
		passages = append(passages, Passage{
			Content:   hit.Content,
			Title:     hit.Title,
			Author:    hit.Author,
			SourceID:  hit.SourceID,
			Certainty: hit.Additional.Certainty,
		})
	}

	span.SetAttributes(attribute.Int("search.hits", len(passages)))
	return passages, nil
}

// AddChunk implements ChunkWriter.
func (s *WeaviateStore) AddChunk(ctx context.Context, chunk Chunk, vector []float32) error {
	ctx, span := tracer.Start(ctx, "WeaviateStore.AddChunk")
	defer span.End()

	properties := map[string]interface{}{
		"content":     chunk.Content,
		"title":       chunk.Title,
		"author":      chunk.Author,
		"source_id":   chunk.SourceID,
		"chunk_index": chunk.ChunkIndex,
		"ingested_at": time.Now().UnixMilli(),
	}

	_, err := s.client.Data().Creator().
		WithClassName(articleChunkClass).
		WithProperties(properties).
		WithVector(vector).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("failed to store article chunk: %w", err)
	}
	return nil
}

// DeleteBySource implements ChunkWriter.
func (s *WeaviateStore) DeleteBySource(ctx context.Context, sourceID string) error {
	ctx, span := tracer.Start(ctx, "WeaviateStore.DeleteBySource")
	defer span.End()

	whereFilter := filters.Where().
		WithPath([]string{"source_id"}).
		WithOperator(filters.Equal).
		WithValueString(sourceID)

	response, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(articleChunkClass).
		WithOutput("minimal").
		WithWhere(whereFilter).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("failed to delete chunks for source %s: %w", sourceID, err)
	}

	slog.Debug("Deleted chunks for source", "sourceId", sourceID, "response", &response.Output)
	return nil
}
