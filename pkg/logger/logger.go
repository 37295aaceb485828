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

// Package logger configures the process-wide slog logger.
//
// Formats: "simple" (level, message, attributes), "verbose" (time, level,
// message, attributes) and "json". Terminal output is colored. Logs from
// outside this module are dropped unless the level is debug.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

const packagePrefix = "github.com/kadirpekel/jobsum"

const (
	FormatSimple  = "simple"
	FormatVerbose = "verbose"
	FormatJSON    = "json"
)

var (
	level         = new(slog.LevelVar)
	defaultLogger *slog.Logger
)

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", levelStr)
	}
}

// SetLevel changes the level of the installed logger, e.g. on config reload.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current level.
func Level() slog.Level {
	return level.Level()
}

// filteringHandler drops records logged from outside this module unless
// the level is debug.
type filteringHandler struct {
	handler slog.Handler
}

func (h *filteringHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.handler.Enabled(ctx, l)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if level.Level() > slog.LevelDebug && !isOwnPackage(record.PC) {
		return nil
	}
	return h.handler.Handle(ctx, record)
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name)}
}

func isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	return strings.HasPrefix(fn.Name(), packagePrefix)
}

// levelColor returns the ANSI color code for a log level.
func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // red
	case l >= slog.LevelWarn:
		return "\033[33m" // yellow
	case l >= slog.LevelInfo:
		return "\033[36m" // cyan
	default:
		return "\033[90m" // gray
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// textHandler writes one line per record: optional time, level, message,
// then key=value attributes.
type textHandler struct {
	mu       *sync.Mutex
	writer   io.Writer
	useColor bool
	withTime bool
	attrs    []slog.Attr
	group    string
}

func (h *textHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= level.Level()
}

func (h *textHandler) Handle(_ context.Context, record slog.Record) error {
	var buf strings.Builder

	if h.withTime && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}

	levelStr := strings.ToUpper(record.Level.String())
	if levelStr == "WARNING" {
		levelStr = "WARN"
	}
	if h.useColor {
		buf.WriteString(levelColor(record.Level))
		buf.WriteString(levelStr)
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(levelStr)
	}
	buf.WriteString(" ")
	buf.WriteString(record.Message)

	write := func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		buf.WriteString(" ")
		buf.WriteString(key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	record.Attrs(write)
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, buf.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

// NewHandler builds the handler for format writing to output.
func NewHandler(output io.Writer, format string) (slog.Handler, error) {
	var handler slog.Handler
	switch format {
	case FormatSimple, "":
		handler = &textHandler{mu: &sync.Mutex{}, writer: output, useColor: isTerminal(output)}
	case FormatVerbose:
		handler = &textHandler{mu: &sync.Mutex{}, writer: output, useColor: isTerminal(output), withTime: true}
	case FormatJSON:
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: simple, verbose, json)", format)
	}
	return &filteringHandler{handler: handler}, nil
}

// Init installs the process-wide logger.
func Init(l slog.Level, output io.Writer, format string) error {
	handler, err := NewHandler(output, format)
	if err != nil {
		return err
	}
	level.Set(l)
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
	return nil
}

// OpenLogFile opens or creates a log file for appending.
// Returns the file handle and a cleanup function.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

// GetLogger returns the installed logger, initializing the default one
// (info, simple, stderr) on first use.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		_ = Init(slog.LevelInfo, os.Stderr, FormatSimple)
	}
	return defaultLogger
}
