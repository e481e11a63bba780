// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the squidops zap logger.
//
// The console owns the terminal, so logs go to a file rather than stderr.
// The level is an AtomicLevel and can change while running (config reload).
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultFile is the log file name under the config directory's logs folder.
const DefaultFile = "squidops.log"

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string

	// File is the log path. Empty disables the file sink.
	File string

	// Stderr also writes to stderr; used by the headless commands.
	Stderr bool
}

// Logger is a zap logger with its adjustable level.
type Logger struct {
	*zap.Logger
	Level zap.AtomicLevel
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// New builds a JSON production logger.
func New(opts Options) (*Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = nil
	cfg.ErrorOutputPaths = nil
	if opts.File != "" {
		// SECURITY: the log records admin activity; owner-only directory.
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, opts.File)
	}
	if opts.Stderr {
		cfg.OutputPaths = append(cfg.OutputPaths, "stderr")
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, "stderr")
	}
	if len(cfg.OutputPaths) == 0 {
		return &Logger{Logger: zap.NewNop(), Level: cfg.Level}, nil
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &Logger{Logger: l.Named("squidops"), Level: cfg.Level}, nil
}

// SetLevel changes the level at runtime.
func (l *Logger) SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	if l.Level.Level() != lvl {
		l.Level.SetLevel(lvl)
		l.Info("LOG_LEVEL_CHANGED", zap.Stringer("level", lvl))
	}
	return nil
}

// DefaultPath is <configDir>/logs/squidops.log.
func DefaultPath(configDir string) string {
	return filepath.Join(configDir, "logs", DefaultFile)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), Level: zap.NewAtomicLevel()}
}
