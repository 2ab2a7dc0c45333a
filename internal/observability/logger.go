package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level. "warning" is accepted for warn.
	Level string

	// Format is json, or console/pretty for human-readable output.
	Format string

	// Output is stdout, stderr or a file path opened for append.
	Output string

	// AddSource adds the caller file and line to every entry.
	AddSource bool

	// TimeFormat is the timestamp layout. Defaults to RFC 3339.
	TimeFormat string

	// Service, when set, is added to every entry.
	Service string
}

// DefaultLoggingConfig returns a LoggingConfig with sensible defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a logger writing to cfg.Output. An output file that
// cannot be opened falls back to stderr and the failure is logged there.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	w, openErr := openOutput(cfg.Output)
	logger := NewLoggerTo(w, cfg)
	if openErr != nil {
		logger.Warn().Err(openErr).Str("output", cfg.Output).Msg("log file unavailable, writing to stderr")
	}
	return logger
}

// NewLoggerTo creates a logger writing to w. cfg.Output is ignored.
func NewLoggerTo(w io.Writer, cfg LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = cfg.TimeFormat
	if zerolog.TimeFieldFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: zerolog.TimeFieldFormat}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if cfg.AddSource {
		ctx = ctx.Caller()
	}

	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return ctx.Logger().Level(level)
}

// ParseLevel converts a level name to a zerolog.Level. Unknown or empty
// names yield info.
func ParseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stderr, err
	}
	return f, nil
}

// WithPaperContext adds paper-related fields to a logger. The store key may
// differ from the paper id when the remote table is keyed by title.
func WithPaperContext(logger zerolog.Logger, paperID, storeKey string) zerolog.Logger {
	return logger.With().
		Str("paper_id", paperID).
		Str("store_key", storeKey).
		Logger()
}

// WithLoadContext adds corpus load fields to a logger. An empty location is
// omitted.
func WithLoadContext(logger zerolog.Logger, source, location string) zerolog.Logger {
	ctx := logger.With().Str("source", source)
	if location != "" {
		ctx = ctx.Str("location", location)
	}
	return ctx.Logger()
}

// WithStoreContext adds like store fields to a logger.
func WithStoreContext(logger zerolog.Logger, backend, table string) zerolog.Logger {
	return logger.With().
		Str("backend", backend).
		Str("table", table).
		Logger()
}

// WithComponent tags a logger with the component that owns it.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
