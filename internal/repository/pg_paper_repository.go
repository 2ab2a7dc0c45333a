package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-timeline/internal/corpus"
	"github.com/helixir/paper-timeline/internal/domain"
)

var (
	_ PaperRepository       = (*PgPaperRepository)(nil)
	_ corpus.DocumentLister = (*PgPaperRepository)(nil)
)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db    DBTX
	table string
}

// NewPgPaperRepository creates a repository over table. An empty table
// name selects "papers".
func NewPgPaperRepository(db DBTX, table string) *PgPaperRepository {
	if table == "" {
		table = "papers"
	}
	return &PgPaperRepository{db: db, table: ident(table)}
}

// ListDocuments implements corpus.DocumentLister.
func (r *PgPaperRepository) ListDocuments(ctx context.Context) ([]corpus.StoredDocument, error) {
	query := fmt.Sprintf(`SELECT id, document FROM %s ORDER BY created_at, id`, r.table)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []corpus.StoredDocument
	for rows.Next() {
		var doc corpus.StoredDocument
		if err := rows.Scan(&doc.Key, &doc.Body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

func (r *PgPaperRepository) upsertSQL() string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, document, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted`, r.table)
}

// Upsert stores doc. The body must be valid JSON.
func (r *PgPaperRepository) Upsert(ctx context.Context, doc corpus.StoredDocument) error {
	if err := validateDocument(doc); err != nil {
		return err
	}

	var inserted bool
	if err := r.db.QueryRow(ctx, r.upsertSQL(), doc.Key, doc.Body).Scan(&inserted); err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.Key, err)
	}
	return nil
}

// Import upserts docs with one round trip. Wrap the call in a transaction
// for all-or-nothing behaviour.
func (r *PgPaperRepository) Import(ctx context.Context, docs []corpus.StoredDocument) (ImportResult, error) {
	var result ImportResult
	if len(docs) == 0 {
		return result, nil
	}

	for _, doc := range docs {
		if err := validateDocument(doc); err != nil {
			return result, err
		}
	}

	batch := &pgx.Batch{}
	query := r.upsertSQL()
	for _, doc := range docs {
		batch.Queue(query, doc.Key, doc.Body)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for i, doc := range docs {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			return result, fmt.Errorf("failed to import document %s at index %d: %w", doc.Key, i, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	return result, nil
}

// Delete removes the document stored under key.
func (r *PgPaperRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), key)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("document", key)
	}
	return nil
}

// Count returns the number of stored documents.
func (r *PgPaperRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func validateDocument(doc corpus.StoredDocument) error {
	if doc.Key == "" {
		return domain.NewValidationError("id", "document key is required")
	}
	if !json.Valid(doc.Body) {
		return domain.NewValidationError("document", fmt.Sprintf("document %s is not valid JSON", doc.Key))
	}
	return nil
}
