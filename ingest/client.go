// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/edgeroom/eventdesk/datatypes"
)

const defaultSearchDataURL = "https://theedgeroom.com/wp-json/custom/v1/search-data"

// SearchDataClient fetches event and article records from the upstream
// search-data API.
type SearchDataClient struct {
	baseURL string
	auth    string
	client  *http.Client
}

// NewSearchDataClient builds the upstream client. SEARCH_DATA_URL overrides
// the endpoint; SEARCH_DATA_AUTH carries the Authorization header value.
func NewSearchDataClient() *SearchDataClient {
	baseURL := os.Getenv("SEARCH_DATA_URL")
	if baseURL == "" {
		baseURL = defaultSearchDataURL
	}
	return &SearchDataClient{
		baseURL: baseURL,
		auth:    os.Getenv("SEARCH_DATA_AUTH"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Fetch pulls records for the date range. recordType is "event", "article"
// or "all".
func (c *SearchDataClient) Fetch(ctx context.Context, startDate, endDate, recordType string) (*datatypes.SearchDataResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"start_date": startDate,
		"end_date":   endDate,
		"type":       recordType,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding fetch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling search-data API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search-data API returned %d: %s", resp.StatusCode, string(body))
	}

	var data datatypes.SearchDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding search-data response: %w", err)
	}
	return &data, nil
}
