package repository

import (
	"context"

	"github.com/helixir/paper-timeline/internal/corpus"
)

// ImportResult counts the rows touched by an import.
type ImportResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// PaperRepository stores raw paper documents.
type PaperRepository interface {
	// ListDocuments returns every document ordered by creation time.
	ListDocuments(ctx context.Context) ([]corpus.StoredDocument, error)

	// Upsert stores one document, replacing the body of an existing row.
	Upsert(ctx context.Context, doc corpus.StoredDocument) error

	// Import upserts documents in a single batch.
	Import(ctx context.Context, docs []corpus.StoredDocument) (ImportResult, error)

	// Delete removes a document. Returns domain.ErrNotFound if absent.
	Delete(ctx context.Context, key string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int64, error)
}
