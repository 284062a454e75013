package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls the process-wide slog handler
type Config struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"` // "text" or "json"
	AddSource bool       `toml:"add_source"`
}

// New builds a logger tagged with the service name.
func New(service string, cfg Config) *slog.Logger {
	return NewWithWriter(os.Stdout, service, cfg)
}

// NewWithWriter is New writing to w.
func NewWithWriter(w io.Writer, service string, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", service))
}

// ParseLevel maps "debug", "info", "warn" and "error" onto slog levels,
// defaulting to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
