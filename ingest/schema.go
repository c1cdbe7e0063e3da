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
	"fmt"

	"github.com/edgeroom/eventdesk/datatypes"
)

// Relational schema for the structured query agent. Records are keyed on
// post_title: the upstream API has no stable numeric id across fetches.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_title TEXT NOT NULL UNIQUE,
    post_content TEXT,
    enabled TEXT,
    event_dates TEXT,
    event_logo TEXT,
    location TEXT,
    venue TEXT,
    url TEXT,
    user_login TEXT,
    display_name TEXT,
    author_company_name TEXT
);

CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_title TEXT NOT NULL UNIQUE,
    post_content TEXT,
    keywords TEXT,
    short_description TEXT,
    user_login TEXT,
    display_name TEXT,
    url TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_dates ON events(event_dates);
CREATE INDEX IF NOT EXISTS idx_events_location ON events(location);
CREATE INDEX IF NOT EXISTS idx_articles_keywords ON articles(keywords);
`

// EnsureSchema creates the events and articles tables when absent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("creating relational schema: %w", err)
	}
	return nil
}

func upsertEvent(ctx context.Context, db *sql.DB, e datatypes.EventRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO events (post_title, post_content, enabled, event_dates,
			event_logo, location, venue, url, user_login, display_name,
			author_company_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_title) DO UPDATE SET
			post_content = excluded.post_content,
			enabled = excluded.enabled,
			event_dates = excluded.event_dates,
			event_logo = excluded.event_logo,
			location = excluded.location,
			venue = excluded.venue,
			url = excluded.url,
			user_login = excluded.user_login,
			display_name = excluded.display_name,
			author_company_name = excluded.author_company_name`,
		e.PostTitle, e.PostContent, e.Enabled, e.EventDates,
		e.EventLogo, e.Location, e.Venue, e.URL, e.UserLogin, e.DisplayName,
		e.CompanyName)
	return err
}

func upsertArticle(ctx context.Context, db *sql.DB, a datatypes.ArticleRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO articles (post_title, post_content, keywords,
			short_description, user_login, display_name, url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_title) DO UPDATE SET
			post_content = excluded.post_content,
			keywords = excluded.keywords,
			short_description = excluded.short_description,
			user_login = excluded.user_login,
			display_name = excluded.display_name,
			url = excluded.url`,
		a.PostTitle, a.PostContent, a.Keywords,
		a.ShortDescription, a.UserLogin, a.DisplayName, a.URL)
	return err
}
