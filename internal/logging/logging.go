package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Configure installs the default slog logger. Level and format come from
// TRANSCRIBE_LOG_LEVEL and TRANSCRIBE_LOG_FORMAT.
func Configure() {
	slog.SetDefault(New(os.Stderr, os.Getenv("TRANSCRIBE_LOG_LEVEL"), os.Getenv("TRANSCRIBE_LOG_FORMAT")))
}

func New(w io.Writer, level, format string) *slog.Logger {
	options := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				if ts, ok := attr.Value.Any().(time.Time); ok {
					attr.Value = slog.StringValue(ts.UTC().Format(time.RFC3339))
				}
			}
			return attr
		},
	}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, options)
	} else {
		handler = slog.NewTextHandler(w, options)
	}
	return slog.New(handler)
}

func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Progress receives human-readable progress lines.
type Progress func(line string)

// Printf formats and emits a line. A nil Progress discards it.
func (p Progress) Printf(format string, args ...any) {
	if p == nil {
		return
	}
	p(fmt.Sprintf(format, args...))
}

// Writer returns a Progress that prints each line to w.
func Writer(w io.Writer) Progress {
	return func(line string) {
		fmt.Fprintln(w, line)
	}
}

// Synchronized wraps p so concurrent callers never interleave lines.
func Synchronized(p Progress, mu *sync.Mutex) Progress {
	if p == nil {
		return nil
	}
	return func(line string) {
		mu.Lock()
		defer mu.Unlock()
		p(line)
	}
}
