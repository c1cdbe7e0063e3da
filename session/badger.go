// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/edgeroom/eventdesk/config"
	"github.com/edgeroom/eventdesk/datatypes"
)

// Key layout:
//
//	meta/<id hex>            -> sessionMeta JSON
//	turn/<id hex>/<seq hex>  -> datatypes.Turn JSON
//
// Session ids are caller supplied and may contain any byte, including the
// '/' key separator, so they are hex encoded before entering a key; raw
// ids would let "a/b" alias into session "a"'s turn prefix. Sequence
// numbers are zero-padded hex so Badger's byte ordering matches arrival
// order.
const (
	metaPrefix = "meta/"
	turnPrefix = "turn/"
)

// BadgerConfig holds configuration for the Badger-backed store.
type BadgerConfig struct {
	// Path is the directory for Badger files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites enables synchronous writes. Durability requires it; tests
	// may disable it.
	SyncWrites bool

	// Logger receives Badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns the production configuration: synchronous
// writes at the given path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// InMemoryBadgerConfig returns a configuration for tests: in-memory, no
// sync.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// sessionMeta is the per-session bookkeeping record.
type sessionMeta struct {
	CreatedAt    int64  `json:"created_at"`
	LastActivity int64  `json:"last_activity"`
	NextSeq      uint64 `json:"next_seq"`
	FirstSeq     uint64 `json:"first_seq"`
}

func (m sessionMeta) turnCount() int {
	return int(m.NextSeq - m.FirstSeq)
}

// BadgerStore is the durable Store implementation backed by BadgerDB.
//
// Per-session serialization is provided by a mutex keyed on session id, on
// top of Badger's transactional guarantees; appends to different sessions
// proceed independently.
type BadgerStore struct {
	db        *badger.DB
	retention config.RetentionPolicy

	mu    sync.Mutex // guards locks
	locks map[string]*sessionLock
}

// sessionLock is a refcounted per-session mutex entry. The count covers
// holders and waiters; the entry is dropped from the map when it reaches
// zero, so idle sessions do not pin map entries.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewBadgerStore opens the database and returns a ready store. The caller
// must Close it when done.
func NewBadgerStore(cfg BadgerConfig, retention config.RetentionPolicy) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent session store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(filepath.Clean(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session store directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	return &BadgerStore{
		db:        db,
		retention: retention,
		locks:     map[string]*sessionLock{},
	}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) acquireLock(sessionID string) *sessionLock {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *BadgerStore) releaseLock(sessionID string, l *sessionLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()
}

func metaKey(sessionID string) []byte {
	return []byte(metaPrefix + hex.EncodeToString([]byte(sessionID)))
}

func turnKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%016x", turnPrefix, hex.EncodeToString([]byte(sessionID)), seq))
}

func sessionTurnPrefix(sessionID string) []byte {
	return []byte(turnPrefix + hex.EncodeToString([]byte(sessionID)) + "/")
}

// Append implements Store. The turn gets the session's next sequence
// number; when the retention MaxTurns bound is exceeded the oldest turns
// are trimmed in the same transaction.
func (s *BadgerStore) Append(ctx context.Context, sessionID string, turn datatypes.Turn) (datatypes.Turn, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Turn{}, &StoreError{Op: "append", Err: err}
	}

	lock := s.acquireLock(sessionID)
	defer s.releaseLock(sessionID, lock)

	now := time.Now().UnixMilli()
	err := s.db.Update(func(txn *badger.Txn) error {
		meta, err := s.readMeta(txn, sessionID)
		if err != nil {
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			// Lazy creation on first append.
			meta = sessionMeta{CreatedAt: now}
		}

		turn.Seq = meta.NextSeq
		payload, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to marshal turn: %w", err)
		}
		if err := txn.Set(turnKey(sessionID, turn.Seq), payload); err != nil {
			return err
		}

		meta.NextSeq++
		meta.LastActivity = now

		if max := s.retention.MaxTurns; max > 0 {
			for meta.turnCount() > max {
				if err := txn.Delete(turnKey(sessionID, meta.FirstSeq)); err != nil {
					return err
				}
				meta.FirstSeq++
			}
		}

		return s.writeMeta(txn, sessionID, meta)
	})
	if err != nil {
		return datatypes.Turn{}, &StoreError{Op: "append", Err: err}
	}
	return turn, nil
}

// GetHistory implements Store.
func (s *BadgerStore) GetHistory(ctx context.Context, sessionID string) ([]datatypes.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "get_history", Err: err}
	}

	turns := []datatypes.Turn{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionTurnPrefix(sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var turn datatypes.Turn
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &turn)
			}); err != nil {
				return fmt.Errorf("failed to decode turn: %w", err)
			}
			turns = append(turns, turn)
		}
		return nil
	})
	if err != nil {
		return nil, &StoreError{Op: "get_history", Err: err}
	}
	return turns, nil
}

// LastN implements Store. The window is read once from a snapshot; the
// returned sequence can be ranged over any number of times and yields the
// same turns in chronological order.
func (s *BadgerStore) LastN(ctx context.Context, sessionID string, n int) (iter.Seq[datatypes.Turn], error) {
	if n <= 0 {
		return func(yield func(datatypes.Turn) bool) {}, nil
	}

	history, err := s.GetHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}

	return func(yield func(datatypes.Turn) bool) {
		for _, turn := range history {
			if !yield(turn) {
				return
			}
		}
	}, nil
}

// Clear implements Store. Removing an unknown session is a no-op success.
func (s *BadgerStore) Clear(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "clear", Err: err}
	}

	lock := s.acquireLock(sessionID)
	defer s.releaseLock(sessionID, lock)

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionTurnPrefix(sessionID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		if err := txn.Delete(metaKey(sessionID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return &StoreError{Op: "clear", Err: err}
	}

	slog.Info("Cleared session history", "sessionId", sessionID)
	return nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context) ([]datatypes.SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	infos := []datatypes.SessionInfo{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw, err := hex.DecodeString(strings.TrimPrefix(string(item.Key()), metaPrefix))
			if err != nil {
				return fmt.Errorf("failed to decode session key: %w", err)
			}
			sessionID := string(raw)

			var meta sessionMeta
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return fmt.Errorf("failed to decode session meta: %w", err)
			}

			infos = append(infos, datatypes.SessionInfo{
				SessionID:    sessionID,
				Turns:        meta.turnCount(),
				CreatedAt:    meta.CreatedAt,
				LastActivity: meta.LastActivity,
			})
		}
		return nil
	})
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	return infos, nil
}

// Stats implements Store.
func (s *BadgerStore) Stats(ctx context.Context, sessionID string) (datatypes.SessionStats, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.SessionStats{}, &StoreError{Op: "stats", Err: err}
	}

	var stats datatypes.SessionStats
	err := s.db.View(func(txn *badger.Txn) error {
		meta, err := s.readMeta(txn, sessionID)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		stats = datatypes.SessionStats{
			TurnCount:    meta.turnCount(),
			CreatedAt:    meta.CreatedAt,
			LastActivity: meta.LastActivity,
		}
		return nil
	})
	if err != nil {
		return datatypes.SessionStats{}, &StoreError{Op: "stats", Err: err}
	}
	return stats, nil
}

// CleanupExpired implements Store. Sessions whose last activity predates
// the retention MaxAge are deleted wholesale.
func (s *BadgerStore) CleanupExpired(ctx context.Context) (int, error) {
	if s.retention.MaxAge <= 0 {
		return 0, nil
	}

	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.retention.MaxAge).UnixMilli()
	removed := 0
	for _, info := range infos {
		if info.LastActivity >= cutoff {
			continue
		}
		if err := s.Clear(ctx, info.SessionID); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		slog.Info("Retention sweep removed idle sessions", "count", removed)
	}
	return removed, nil
}

func (s *BadgerStore) readMeta(txn *badger.Txn, sessionID string) (sessionMeta, error) {
	item, err := txn.Get(metaKey(sessionID))
	if err != nil {
		return sessionMeta{}, err
	}
	var meta sessionMeta
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	}); err != nil {
		return sessionMeta{}, fmt.Errorf("failed to decode session meta: %w", err)
	}
	return meta, nil
}

func (s *BadgerStore) writeMeta(txn *badger.Txn, sessionID string, meta sessionMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session meta: %w", err)
	}
	return txn.Set(metaKey(sessionID), payload)
}
