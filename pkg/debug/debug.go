// Package debug configures byok's slog output and adds category-gated
// debug logging on top of it.
//
// Categories select WHAT is logged at debug level (BYOK_DEBUG or config),
// the level selects HOW MUCH (BYOK_LOG_LEVEL or config):
//
//	debug.Log("providers", "request", "url", url)
//	if debug.Enabled("streaming") { /* expensive formatting */ }
//
// Categories: providers, streaming, engine, storage, credentials, auth,
// transport, config, all. Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
const LevelTrace = slog.LevelDebug - 4

var categories atomic.Pointer[map[string]bool]

func init() {
	setCategories(parseCategories(os.Getenv("BYOK_DEBUG")))
}

// Options are the configured logging settings. Environment variables
// take precedence over them.
type Options struct {
	Categories string
	Level      string
	// Format is "text" (default) or "json".
	Format string
}

// Init installs the default slog logger and the enabled categories.
func Init(opts Options) {
	InitWriter(os.Stderr, opts)
}

// InitWriter is Init with an explicit output.
func InitWriter(w io.Writer, opts Options) {
	setCategories(parseCategories(envOr("BYOK_DEBUG", opts.Categories)))

	handlerOpts := &slog.HandlerOptions{
		Level:       ParseLevel(envOr("BYOK_LOG_LEVEL", opts.Level)),
		ReplaceAttr: renameTrace,
	}

	var h slog.Handler
	if strings.EqualFold(envOr("BYOK_LOG_FORMAT", opts.Format), "json") {
		h = slog.NewJSONHandler(w, handlerOpts)
	} else {
		h = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(h))
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	m := *categories.Load()
	return m["all"] || m[category]
}

// Log emits a debug message for the given category. It is a no-op when
// the category is disabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel converts a level string to a slog.Level. Unknown values
// default to INFO.
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

// Categories returns the enabled categories, sorted.
func Categories() []string {
	m := *categories.Load()
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// MaskKey returns a loggable form of a secret: its last four characters.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func renameTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

func setCategories(m map[string]bool) {
	categories.Store(&m)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
