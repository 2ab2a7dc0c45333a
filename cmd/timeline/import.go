package main

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/app"
	"github.com/helixir/paper-timeline/internal/database"
	"github.com/helixir/paper-timeline/internal/repository"
)

var (
	importManifest string
	importMigrate  bool
)

func init() {
	importCmd.Flags().StringVar(&importManifest, "manifest", "", "Manifest to import (default: corpus.manifest)")
	importCmd.Flags().BoolVar(&importMigrate, "migrate", false, "Apply pending migrations first")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy manifest documents into the PostgreSQL papers table",
	Long: `Fetch every document listed in a manifest and upsert it into the
corpus table, keyed by paper id. The import is all-or-nothing: one
unreadable or invalid document aborts it. Afterwards the server can run
with corpus.source=postgres.

Examples:
  timeline import
  timeline import --manifest s3://papers/papers_index.json --migrate`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if importManifest != "" {
		cfg.Corpus.Manifest = importManifest
	}

	source, err := app.NewManifestSource(cfg)
	if err != nil {
		return err
	}
	docs, err := source.Documents(ctx)
	if err != nil {
		return err
	}

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if importMigrate {
		if err := migrateUp(db, cfg.Database.MigrationPath, logger); err != nil {
			return err
		}
	}

	var result repository.ImportResult
	err = db.WithTransaction(ctx, func(tx pgx.Tx) error {
		result, err = repository.NewPgPaperRepository(tx, cfg.Corpus.Table).Import(ctx, docs)
		return err
	})
	if err != nil {
		return fmt.Errorf("import documents: %w", err)
	}

	logger.Info().
		Str("manifest", cfg.Corpus.Manifest).
		Str("table", cfg.Corpus.Table).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Msg("documents imported")

	if humanOutput {
		fmt.Printf("imported %d documents into %s (%d new, %d updated)\n",
			len(docs), cfg.Corpus.Table, result.Inserted, result.Updated)
		return nil
	}
	return outputJSON(result)
}
