// Package main provides the timeline CLI: browse, like and export the
// paper timeline from a terminal, import documents and manage migrations.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/app"
	"github.com/helixir/paper-timeline/internal/config"
	"github.com/helixir/paper-timeline/internal/database"
	"github.com/helixir/paper-timeline/internal/likes"
	"github.com/helixir/paper-timeline/internal/locale"
	"github.com/helixir/paper-timeline/internal/observability"
	"github.com/helixir/paper-timeline/internal/timeline"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

var localeOverride string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Browse and like papers on the research timeline",
	Long: `timeline loads the paper corpus and the remote like counts the same
way the server does, then lists, filters, likes or exports papers.

Settings come from config.yaml and TIMELINE_* environment variables; a
.env file in the working directory is loaded first. All commands output
JSON by default.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&localeOverride, "locale", "", "Presentation locale (en, zh-CN)")
	rootCmd.Version = Version
}

// loadConfig reads configuration and builds a console logger on stderr.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if localeOverride != "" {
		cfg.View.Locale = localeOverride
	}
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: cfg.Logging.TimeFormat,
	})
	return cfg, logger.With().Str("component", "cli").Logger(), nil
}

// session is a loaded timeline plus the resources behind it.
type session struct {
	cfg      *config.Config
	logger   zerolog.Logger
	db       *database.DB
	store    likes.Store
	engine   *likes.Engine
	timeline *timeline.Timeline
}

// rendererFunc builds a renderer for the configured locale.
type rendererFunc func(loc *locale.Locale) timeline.Renderer

// openSession wires the timeline exactly as the server does and loads it.
// newRenderer may be nil.
func openSession(ctx context.Context, newRenderer rendererFunc) (*session, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger}

	var renderer timeline.Renderer
	if newRenderer != nil {
		renderer = newRenderer(locale.MustLookup(cfg.View.Locale))
	}

	if cfg.NeedsDatabase() {
		if s.db, err = database.New(ctx, &cfg.Database, logger); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
	}

	if s.store, err = app.NewStore(cfg, s.db, logger); err != nil {
		s.Close()
		return nil, fmt.Errorf("create like store: %w", err)
	}
	if s.engine, err = app.NewEngine(cfg, s.store, logger); err != nil {
		s.Close()
		return nil, fmt.Errorf("create like engine: %w", err)
	}
	source, err := app.NewSource(cfg, s.db, nil, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create corpus source: %w", err)
	}
	if s.timeline, err = app.NewTimeline(cfg, source, s.engine, renderer, nil, logger); err != nil {
		s.Close()
		return nil, fmt.Errorf("create timeline: %w", err)
	}

	if err := s.timeline.Init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close waits for pending like writes and releases resources.
func (s *session) Close() {
	if s.engine != nil {
		s.engine.Wait()
	}
	if closer, ok := s.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error().Err(err).Msg("failed to close like store")
		}
	}
	if s.db != nil {
		s.db.Close()
	}
}
