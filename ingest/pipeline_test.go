// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/vectorstore"
)

// =============================================================================
// Test Setup
// =============================================================================

type stubFetcher struct {
	data *datatypes.SearchDataResponse
	err  error
}

func (s *stubFetcher) Fetch(ctx context.Context, startDate, endDate, recordType string) (*datatypes.SearchDataResponse, error) {
	return s.data, s.err
}

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2}, nil
}

type recordingChunkWriter struct {
	added   []vectorstore.Chunk
	deleted []string
}

func (w *recordingChunkWriter) AddChunk(ctx context.Context, chunk vectorstore.Chunk, vector []float32) error {
	w.added = append(w.added, chunk)
	return nil
}

func (w *recordingChunkWriter) DeleteBySource(ctx context.Context, sourceID string) error {
	w.deleted = append(w.deleted, sourceID)
	return nil
}

func newIngestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func sampleData() *datatypes.SearchDataResponse {
	return &datatypes.SearchDataResponse{
		Events: []datatypes.EventRecord{
			{PostTitle: "AI Summit", Location: "Berlin", EventDates: "2024-03-01"},
		},
		Articles: []datatypes.ArticleRecord{
			{ID: 7, PostTitle: "Storage Advances", PostContent: "Long article body about grid storage.", DisplayName: "Jordan Reyes"},
		},
	}
}

func fetchAll() datatypes.FetchRequest {
	return datatypes.FetchRequest{StartDate: "1900-01-01", EndDate: "2030-01-01", Type: "all"}
}

// =============================================================================
// Run
// =============================================================================

func TestPipeline_UpsertsAndEmbeds(t *testing.T) {
	db := newIngestDB(t)
	chunks := &recordingChunkWriter{}
	p := NewPipeline(&stubFetcher{data: sampleData()}, db, &stubEmbedder{}, chunks)

	summary, err := p.Run(context.Background(), fetchAll())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.EventsProcessed)
	assert.Equal(t, 1, summary.ArticlesProcessed)
	assert.Equal(t, summary.EmbeddedChunks, len(chunks.added))
	require.NotEmpty(t, chunks.added)
	assert.Equal(t, "Storage Advances", chunks.added[0].Title)
	assert.Equal(t, "7", chunks.added[0].SourceID)
	assert.Equal(t, []string{"7"}, chunks.deleted)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPipeline_RepeatedRunUpdatesInPlace(t *testing.T) {
	db := newIngestDB(t)
	data := sampleData()
	p := NewPipeline(&stubFetcher{data: data}, db, nil, nil)

	_, err := p.Run(context.Background(), fetchAll())
	require.NoError(t, err)

	data.Events[0].Location = "Munich"
	_, err = p.Run(context.Background(), fetchAll())
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count))
	assert.Equal(t, 1, count)

	var location string
	require.NoError(t, db.QueryRow("SELECT location FROM events WHERE post_title = 'AI Summit'").Scan(&location))
	assert.Equal(t, "Munich", location)
}

func TestPipeline_EmbeddingFailureDoesNotFailRun(t *testing.T) {
	db := newIngestDB(t)
	p := NewPipeline(&stubFetcher{data: sampleData()}, db, &stubEmbedder{err: errors.New("embedder down")}, &recordingChunkWriter{})

	summary, err := p.Run(context.Background(), fetchAll())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ArticlesProcessed)
	assert.Zero(t, summary.EmbeddedChunks)
}

func TestPipeline_FetchFailureFailsRun(t *testing.T) {
	db := newIngestDB(t)
	p := NewPipeline(&stubFetcher{err: errors.New("upstream 500")}, db, nil, nil)

	_, err := p.Run(context.Background(), fetchAll())
	assert.Error(t, err)
}

func TestPipeline_SkipsUntitledRecords(t *testing.T) {
	db := newIngestDB(t)
	data := &datatypes.SearchDataResponse{
		Events:   []datatypes.EventRecord{{Location: "Nowhere"}},
		Articles: []datatypes.ArticleRecord{{PostContent: "orphan body"}},
	}
	p := NewPipeline(&stubFetcher{data: data}, db, nil, nil)

	summary, err := p.Run(context.Background(), fetchAll())
	require.NoError(t, err)
	assert.Zero(t, summary.EventsProcessed)
	assert.Zero(t, summary.ArticlesProcessed)
}

func TestArticleSourceID(t *testing.T) {
	assert.Equal(t, "7", articleSourceID(datatypes.ArticleRecord{ID: 7, PostTitle: "T"}))
	assert.Equal(t, "T", articleSourceID(datatypes.ArticleRecord{PostTitle: "T"}))
}
