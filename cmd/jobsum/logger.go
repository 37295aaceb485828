// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kadirpekel/jobsum/pkg/config"
	"github.com/kadirpekel/jobsum/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
	// DefaultLogFormat is the default log format
	DefaultLogFormat = logger.FormatSimple
	// DefaultLogLevel is the default log level
	DefaultLogLevel = "info"
)

// logging tracks the logger settings given by flags or env so the config
// file only fills what they leave unset.
type logging struct {
	level   string
	file    string
	format  string
	cleanup func()
}

// initLoggerFromCLI initializes the logger from CLI flags and environment variables.
// Priority: CLI flags > env vars > config file > defaults
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (*logging, error) {
	l := &logging{
		level:  firstNonEmpty(cliLogLevel, os.Getenv(LogLevelEnvVar)),
		file:   firstNonEmpty(cliLogFile, os.Getenv(LogFileEnvVar)),
		format: firstNonEmpty(cliLogFormat, os.Getenv(LogFormatEnvVar)),
	}
	if err := l.apply(nil); err != nil {
		return nil, err
	}
	return l, nil
}

// apply reinitializes the logger, filling unset values from cfg.
func (l *logging) apply(cfg *config.LoggerConfig) error {
	levelStr, file, format := l.level, l.file, l.format
	if cfg != nil {
		levelStr = firstNonEmpty(levelStr, cfg.Level)
		file = firstNonEmpty(file, cfg.File)
		format = firstNonEmpty(format, cfg.Format)
	}
	levelStr = firstNonEmpty(levelStr, DefaultLogLevel)
	format = firstNonEmpty(format, DefaultLogFormat)

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer = os.Stderr
	var cleanup func()
	if file != "" {
		f, cleanupFn, err := logger.OpenLogFile(file)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		cleanup = cleanupFn
	}

	if err := logger.Init(level, output, format); err != nil {
		if cleanup != nil {
			cleanup()
		}
		return err
	}

	l.Close()
	l.cleanup = cleanup
	return nil
}

// reloadLevel applies a reloaded config's level unless a flag or env
// variable pinned it.
func (l *logging) reloadLevel(cfg *config.LoggerConfig) {
	if l.level != "" || cfg == nil || cfg.Level == "" {
		return
	}
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		slog.Warn("Ignoring invalid log level", "level", cfg.Level, "error", err)
		return
	}
	if level != logger.Level() {
		logger.SetLevel(level)
		slog.Info("Log level changed", "level", level)
	}
}

// Close releases the log file, if any.
func (l *logging) Close() {
	if l != nil && l.cleanup != nil {
		l.cleanup()
		l.cleanup = nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
