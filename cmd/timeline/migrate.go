package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/database"
)

var migrationsPath string

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "path", "",
		"Read migrations from this directory instead of the ones built into the binary")
	migrateCmd.AddCommand(
		migrateActionCmd("up", "Run all pending migrations", cobra.NoArgs,
			func(m *database.Migrator, logger zerolog.Logger, args []string) error {
				logger.Info().Msg("running all pending migrations")
				return m.Up()
			}),
		migrateActionCmd("down", "Roll back all migrations", cobra.NoArgs,
			func(m *database.Migrator, logger zerolog.Logger, args []string) error {
				logger.Warn().Msg("rolling back all migrations")
				return m.Down()
			}),
		migrateActionCmd("steps <n>", "Run N migration steps (positive=up, negative=down)", cobra.ExactArgs(1),
			func(m *database.Migrator, logger zerolog.Logger, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
				}
				logger.Info().Int("steps", n).Msg("running migration steps")
				return m.Steps(n)
			}),
		migrateActionCmd("version", "Print the current migration version", cobra.NoArgs,
			func(m *database.Migrator, logger zerolog.Logger, args []string) error {
				return nil
			}),
		migrateActionCmd("force <version>", "Force set migration version (use to recover from failed migrations)", cobra.ExactArgs(1),
			func(m *database.Migrator, logger zerolog.Logger, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
				}
				return m.Force(v)
			}),
	)
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
	Long: `Apply or roll back the papers and paper_likes schema. Database
settings come from the database.* configuration.

Examples:
  timeline migrate up
  timeline migrate steps -- -1
  timeline migrate force 1`,
}

type migrateAction func(m *database.Migrator, logger zerolog.Logger, args []string) error

// migrateActionCmd builds a subcommand that runs action against a fresh
// migrator and prints the resulting schema status.
func migrateActionCmd(use, short string, args cobra.PositionalArgs, action migrateAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			logger = logger.With().Str("component", "migrate").Logger()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			db, err := database.New(ctx, &cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			dir := cfg.Database.MigrationPath
			if migrationsPath != "" {
				dir = migrationsPath
			}
			migrator, err := database.NewMigrator(db, dir, logger)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer func() {
				if closeErr := migrator.Close(); closeErr != nil {
					logger.Error().Err(closeErr).Msg("failed to close migrator")
				}
			}()

			if err := action(migrator, logger, posArgs); err != nil {
				return fmt.Errorf("migrate %s: %w", cmd.Name(), err)
			}
			return printStatus(migrator)
		},
	}
}

// migrateUp applies pending migrations on an open database.
func migrateUp(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// printStatus writes the schema status.
func printStatus(migrator *database.Migrator) error {
	status, err := migrator.Status()
	if err != nil {
		return err
	}
	if !humanOutput {
		return outputJSON(status)
	}
	switch {
	case !status.Applied:
		fmt.Println("no migrations applied")
	case status.Dirty:
		fmt.Printf("version %d (dirty: fix the schema, then run migrate force %d)\n", status.Version, status.Version)
	default:
		fmt.Printf("version %d\n", status.Version)
	}
	return nil
}
