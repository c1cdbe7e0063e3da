// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ingest pulls event and article records from the upstream
// search-data API, upserts them into the relational store, and embeds
// article text into the vector index. The chat core never initiates
// ingestion; it only reads the resulting stores through the agents.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/observability"
	"github.com/edgeroom/eventdesk/vectorstore"
)

var tracer = otel.Tracer("eventdesk.ingest")

var (
	chunkSize         = 1000
	chunkOverlap      = chunkSize / 10
	articleSeparators = []string{"\n\n", "\n", ". ", " ", ""}
)

// Fetcher is the upstream record source. SearchDataClient is the production
// implementation.
type Fetcher interface {
	Fetch(ctx context.Context, startDate, endDate, recordType string) (*datatypes.SearchDataResponse, error)
}

// Pipeline runs one ingestion pass: fetch, upsert, chunk, embed, index.
type Pipeline struct {
	fetcher  Fetcher
	db       *sql.DB
	embedder vectorstore.Embedder
	chunks   vectorstore.ChunkWriter
	splitter textsplitter.TextSplitter
}

// NewPipeline wires the pipeline. The embedder and chunk writer may both be
// nil for a relational-only deployment; articles are then stored without
// being indexed.
func NewPipeline(fetcher Fetcher, db *sql.DB, embedder vectorstore.Embedder, chunks vectorstore.ChunkWriter) *Pipeline {
	return &Pipeline{
		fetcher:  fetcher,
		db:       db,
		embedder: embedder,
		chunks:   chunks,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(articleSeparators),
		),
	}
}

// Run executes one ingestion pass for the request's date range. A fetch
// failure fails the run; per-record upsert and embedding failures are
// logged and skipped so one bad record never aborts the rest.
func (p *Pipeline) Run(ctx context.Context, req datatypes.FetchRequest) (datatypes.FetchSummary, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingest.start_date", req.StartDate),
		attribute.String("ingest.end_date", req.EndDate),
		attribute.String("ingest.type", req.Type),
	)

	var summary datatypes.FetchSummary

	data, err := p.fetcher.Fetch(ctx, req.StartDate, req.EndDate, req.Type)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return summary, fmt.Errorf("fetching upstream records: %w", err)
	}
	slog.Info("Fetched upstream records",
		"events", len(data.Events), "articles", len(data.Articles))

	for _, event := range data.Events {
		if event.PostTitle == "" {
			continue
		}
		if err := upsertEvent(ctx, p.db, event); err != nil {
			slog.Error("Failed to upsert event", "error", err, "title", event.PostTitle)
			observability.IngestRecordsTotal.WithLabelValues("event", "error").Inc()
			continue
		}
		observability.IngestRecordsTotal.WithLabelValues("event", "ok").Inc()
		summary.EventsProcessed++
	}

	for _, article := range data.Articles {
		if article.PostTitle == "" {
			continue
		}
		if err := upsertArticle(ctx, p.db, article); err != nil {
			slog.Error("Failed to upsert article", "error", err, "title", article.PostTitle)
			observability.IngestRecordsTotal.WithLabelValues("article", "error").Inc()
			continue
		}
		observability.IngestRecordsTotal.WithLabelValues("article", "ok").Inc()
		summary.ArticlesProcessed++

		// Embedding failures degrade search coverage but never fail the
		// run; the relational row is already durable.
		embedded, err := p.embedArticle(ctx, article)
		if err != nil {
			slog.Warn("Failed to embed article", "error", err, "title", article.PostTitle)
			continue
		}
		summary.EmbeddedChunks += embedded
	}

	span.SetAttributes(
		attribute.Int("ingest.events", summary.EventsProcessed),
		attribute.Int("ingest.articles", summary.ArticlesProcessed),
		attribute.Int("ingest.chunks", summary.EmbeddedChunks),
	)
	return summary, nil
}

// embedArticle re-indexes one article: existing chunks for the source are
// dropped, then the fresh text is split, embedded, and written.
func (p *Pipeline) embedArticle(ctx context.Context, article datatypes.ArticleRecord) (int, error) {
	if p.embedder == nil || p.chunks == nil {
		return 0, nil
	}

	text := article.PostContent
	if text == "" {
		text = article.ShortDescription
	}
	if text == "" {
		return 0, nil
	}

	sourceID := articleSourceID(article)
	if err := p.chunks.DeleteBySource(ctx, sourceID); err != nil {
		return 0, fmt.Errorf("clearing stale chunks: %w", err)
	}

	pieces, err := p.splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("splitting article text: %w", err)
	}

	written := 0
	for i, piece := range pieces {
		vector, err := p.embedder.Embed(ctx, piece)
		if err != nil {
			return written, fmt.Errorf("embedding chunk %d: %w", i, err)
		}
		chunk := vectorstore.Chunk{
			Content:    piece,
			Title:      article.PostTitle,
			Author:     article.DisplayName,
			SourceID:   sourceID,
			ChunkIndex: i,
		}
		if err := p.chunks.AddChunk(ctx, chunk, vector); err != nil {
			return written, fmt.Errorf("writing chunk %d: %w", i, err)
		}
		written++
	}
	return written, nil
}

// articleSourceID keys an article's chunks. Prefers the upstream numeric
// id, falls back to the title, which upserts also key on.
func articleSourceID(article datatypes.ArticleRecord) string {
	if article.ID != 0 {
		return strconv.FormatInt(article.ID, 10)
	}
	return article.PostTitle
}
