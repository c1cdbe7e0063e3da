// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "github.com/go-playground/validator/v10"

// EventRecord is one event row as delivered by the upstream search-data API
// and stored in the events table. Field names follow the API payload.
type EventRecord struct {
	ID          int64  `json:"id"`
	PostTitle   string `json:"post_title"`
	PostContent string `json:"post_content"`
	Enabled     string `json:"enabled"`
	EventDates  string `json:"event_dates"`
	EventLogo   string `json:"event_logo"`
	Location    string `json:"location"`
	Venue       string `json:"venue"`
	URL         string `json:"url"`
	UserLogin   string `json:"user_login"`
	DisplayName string `json:"display_name"`
	CompanyName string `json:"author_company_name__title"`
}

// ArticleRecord is one article row as delivered by the upstream API and
// stored in the articles table. The description fields feed the embedding
// pipeline.
type ArticleRecord struct {
	ID               int64  `json:"id"`
	PostTitle        string `json:"post_title"`
	PostContent      string `json:"post_content"`
	Keywords         string `json:"keywords"`
	ShortDescription string `json:"short_description"`
	UserLogin        string `json:"user_login"`
	DisplayName      string `json:"display_name"`
	URL              string `json:"url"`
}

// SearchDataResponse is the upstream API's payload shape.
type SearchDataResponse struct {
	Events   []EventRecord   `json:"events"`
	Articles []ArticleRecord `json:"articles"`
}

var fetchValidate = validator.New()

// FetchRequest is the body of POST /v1/data/fetch. Type selects what to
// ingest: "event", "article", or "all".
type FetchRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Type      string `json:"type" validate:"omitempty,oneof=event article all"`
}

// Validate checks the request against its validation tags.
func (r *FetchRequest) Validate() error {
	return fetchValidate.Struct(r)
}

// EnsureDefaults fills the record type selector.
func (r *FetchRequest) EnsureDefaults() {
	if r.Type == "" {
		r.Type = "all"
	}
}

// FetchSummary reports what an ingest run accomplished. Embedding failures
// do not fail the run, so EmbeddedChunks may lag ArticlesProcessed.
type FetchSummary struct {
	EventsProcessed   int `json:"events_processed"`
	ArticlesProcessed int `json:"articles_processed"`
	EmbeddedChunks    int `json:"embedded_chunks"`
}
