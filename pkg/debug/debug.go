// Package debug provides category-based debug logging for modelbridge.
//
// Categories select WHAT to debug (MODELBRIDGE_DEBUG or config), levels
// select HOW MUCH (MODELBRIDGE_LOG_LEVEL or config):
//
//	debug.Log(debug.Executor, "attempt", "n", 2, "url", url)
//	if debug.Enabled(debug.Streaming) { /* expensive formatting */ }
//
// At TRACE, raw request bodies and SSE lines are written through Raw.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Debug categories.
const (
	Providers  = "providers"
	Executor   = "executor"
	Streaming  = "streaming"
	Structured = "structured"
	Config     = "config"
	All        = "all"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
const LevelTrace = slog.LevelDebug - 4

// categories is read-only after Init.
var categories map[string]bool

// rawOut receives Raw output. Tests replace it.
var rawOut io.Writer = os.Stderr

func init() {
	categories = parseCategories(os.Getenv("MODELBRIDGE_DEBUG"))
}

// Init configures categories, level and output format ("text" or "json").
// Environment variables take precedence over the config values.
func Init(configCategories, configLevel, format string) {
	cats := os.Getenv("MODELBRIDGE_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("MODELBRIDGE_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// Enabled reports whether debug output is active for the category.
func Enabled(category string) bool {
	return categories[All] || categories[category]
}

// Log emits a debug message for the category. No-op when disabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes unformatted text, such as a full request body, when the
// category is enabled at TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintf(rawOut, "[%s] %s\n", category, text)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories in sorted order.
func Categories() []string {
	result := make([]string, 0, len(categories))
	for k := range categories {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Truncate returns s cut to maxLen bytes with "..." appended when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
