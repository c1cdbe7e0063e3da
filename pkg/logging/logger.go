// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for the service.
//
// Output is slog JSON on stdout, with an optional file destination for
// deployments where stdout is not collected. Every entry carries a
// "service" attribute so aggregated logs can be filtered by component.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config controls Setup. The zero value logs Info and above as JSON to
// stdout.
type Config struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// Service is stamped on every entry.
	Service string

	// LogDir, when set, adds a {service}_{date}.log JSON file destination.
	// The directory is created when absent.
	LogDir string
}

// FromEnv reads LOG_LEVEL and LOG_DIR.
func FromEnv(service string) Config {
	return Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Service: service,
		LogDir:  os.Getenv("LOG_DIR"),
	}
}

// Setup installs the configured logger as the slog default and returns a
// close function for the optional log file.
func Setup(cfg Config) (func(), error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	closeFile := func() {}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		name := fmt.Sprintf("%s_%s.log", cfg.Service, time.Now().Format("2006-01-02"))
		file, err := os.OpenFile(filepath.Join(cfg.LogDir, name),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		handler = &fanoutHandler{handlers: []slog.Handler{
			handler,
			slog.NewJSONHandler(file, opts),
		}}
		closeFile = func() {
			_ = file.Sync()
			_ = file.Close()
		}
	}

	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	slog.SetDefault(slog.New(handler))
	return closeFile, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanoutHandler sends each record to every destination.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: handlers}
}
