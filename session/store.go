// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session provides durable, per-session conversation history.
//
// # Description
//
// The Store interface is the only shared mutable resource in the core. Its
// mutation discipline is append-only per session, serialized per session id:
// concurrent appends to the same session never interleave, appends to
// different sessions are independent. All mutations are durably committed
// before the call returns.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/edgeroom/eventdesk/datatypes"
)

// Store is the session store contract.
type Store interface {
	// GetHistory returns every turn of a session in arrival order. Unknown
	// session ids yield an empty history, not an error.
	GetHistory(ctx context.Context, sessionID string) ([]datatypes.Turn, error)

	// Append durably appends a turn, creating the session if absent, and
	// returns the stored turn with its assigned sequence number. Appends to
	// the same session id are serialized relative to each other.
	Append(ctx context.Context, sessionID string, turn datatypes.Turn) (datatypes.Turn, error)

	// Clear removes a session and its history. Clearing a session that does
	// not exist is a no-op success.
	Clear(ctx context.Context, sessionID string) error

	// LastN returns a restartable sequence over the most recent n turns in
	// chronological order, read from a single snapshot. Used to build the
	// context window for classification and agent prompts.
	LastN(ctx context.Context, sessionID string, n int) (iter.Seq[datatypes.Turn], error)

	// List returns a summary of every stored session.
	List(ctx context.Context) ([]datatypes.SessionInfo, error)

	// Stats returns per-session statistics. Unknown ids yield zero stats.
	Stats(ctx context.Context, sessionID string) (datatypes.SessionStats, error)

	// CleanupExpired deletes sessions idle beyond the retention MaxAge and
	// returns how many were removed.
	CleanupExpired(ctx context.Context) (int, error)
}

// StoreError wraps a session store failure. Store failures are fatal for
// the current request and are surfaced distinctly from agent failures,
// since they affect every subsequent turn of the session.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err is a *StoreError. Handlers use it to map
// store failures to a service error instead of a chat answer.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
