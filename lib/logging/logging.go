// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the daemon's process logger: a slog handler
// (text or JSON) writing to the process log file and mirroring every
// line to stderr for the service supervisor.
//
// With MaxSizeMB set, the file is managed by lumberjack and rotated by
// size. With MaxSizeMB zero the file is opened O_APPEND and never
// rotated, truncated or removed.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error.
	Level string

	// Format is text or json.
	Format string

	// File is the process log path. Empty logs to Mirror only.
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Mirror receives a copy of every line. Nil means os.Stderr.
	Mirror io.Writer
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// New returns the logger and a closer for its file. Close the closer
// after the last log call.
func New(options Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(options.Level)
	if err != nil {
		return nil, nil, err
	}

	mirror := options.Mirror
	if mirror == nil {
		mirror = os.Stderr
	}

	var output io.Writer = mirror
	var closer io.Closer = nopCloser{}
	if options.File != "" {
		file, err := openFile(options)
		if err != nil {
			return nil, nil, err
		}
		output = io.MultiWriter(file, mirror)
		closer = file
	}

	handlerOptions := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "", "text":
		handler = slog.NewTextHandler(output, handlerOptions)
	case "json":
		handler = slog.NewJSONHandler(output, handlerOptions)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", options.Format)
	}
	return slog.New(handler), closer, nil
}

func openFile(options Options) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(options.File), 0o750); err != nil {
		return nil, fmt.Errorf("creating process log directory: %w", err)
	}
	if options.MaxSizeMB > 0 {
		return &lumberjack.Logger{
			Filename:   options.File,
			MaxSize:    options.MaxSizeMB,
			MaxBackups: options.MaxBackups,
			MaxAge:     options.MaxAgeDays,
			Compress:   options.Compress,
		}, nil
	}
	file, err := os.OpenFile(options.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening process log: %w", err)
	}
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
