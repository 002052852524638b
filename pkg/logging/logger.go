// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for genreshift components.
//
// The package is a thin layer over Go's standard library slog package:
//
//   - Default: stderr output in text format (follows Unix conventions)
//   - Optional: JSON output for machine ingestion
//   - Every logger is tagged with the service name that created it
//
// # Basic Usage
//
// For simple CLI usage with stderr output:
//
//	logger := logging.Default()
//	logger.Info("session started", "session_id", sessionID)
//	logger.Error("plan generation failed", "error", err)
//
// For a configured service:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    Service: "transform",
//	    JSON:    true,
//	})
//
// # Log Levels
//
// Four levels are supported, matching slog conventions:
//
//   - Debug: development troubleshooting, verbose output
//   - Info: normal operations (stage transitions, request start/end)
//   - Warn: recoverable issues (retry attempts, clamped scores)
//   - Error: operation failures (but system continues)
//
// # Thread Safety
//
// The returned *slog.Logger is safe for concurrent use.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels.
//
// Levels follow the slog convention and are ordered by severity:
// Debug < Info < Warn < Error. Setting a minimum level filters out
// all logs below that level.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for potentially problematic situations the system
	// can recover from, such as retries or clamped input values.
	LevelWarn

	// LevelError is for operation failures.
	LevelError
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel converts our Level to slog.Level.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a string such as "debug" or "WARN" to a Level.
//
// Inputs:
//   - s: Level name, case-insensitive.
//
// Outputs:
//   - Level: Parsed level.
//   - error: Non-nil if the name is not a known level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures logger construction.
//
// A zero-value Config creates a logger that writes Info+ messages to
// stderr in text format.
type Config struct {
	// Level sets the minimum log level. Default: LevelInfo.
	Level Level

	// Service is attached to every record as the "service" attribute.
	Service string

	// JSON switches output from text to JSON format.
	JSON bool

	// Writer overrides the output destination. Default: os.Stderr.
	// Primarily used by tests.
	Writer io.Writer
}

// New creates a logger from the given Config.
//
// Outputs:
//   - *slog.Logger: Ready-to-use logger, never nil.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

// Default returns a logger with default settings (Info level, stderr, text).
func Default() *slog.Logger {
	return New(Config{})
}

// Setup installs a logger built from cfg as the process-wide slog default.
//
// Components in this repository log through the default slog logger, so
// binaries call Setup once at startup before constructing the pipeline.
func Setup(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}
