// Package likes reconciles the corpus with the remote like counter table.
//
// The remote table is reached through the Store contract. Backends live in
// sub-packages (memory, postgrest, dynamo, sqlite) and in
// repository.PgLikeRepository. The Engine owns the last fetched remote counts,
// merges them into papers, and applies optimistic increments whose
// persistence runs in the background.
package likes

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/helixir/paper-timeline/internal/domain"
)

// MaxTitleLength is the longest title stored in a remote row, in characters.
const MaxTitleLength = 255

// Record is one remote counter row.
type Record struct {
	Key       string
	Title     string
	Count     int64
	CreatedAt time.Time
}

// Store is the remote counter table.
type Store interface {
	// FetchAll returns every (key, count) pair.
	FetchAll(ctx context.Context) (map[string]int64, error)

	// Get returns the count for one key.
	// Returns domain.ErrNotFound if no row exists.
	Get(ctx context.Context, key string) (int64, error)

	// Insert creates a new row.
	// Returns domain.ErrAlreadyExists if the key is taken.
	Insert(ctx context.Context, rec Record) error

	// Update sets the count of an existing row.
	// Returns domain.ErrNotFound if no row exists.
	Update(ctx context.Context, key string, count int64) error

	// Upsert inserts rec or overwrites the count of the row with the same key.
	Upsert(ctx context.Context, rec Record) error
}

// Incrementer is implemented by stores that can add to a counter server-side.
// Increment creates the row when missing and returns the new remote count.
type Incrementer interface {
	Increment(ctx context.Context, rec Record, delta int64) (int64, error)
}

// KeySchema selects which paper attribute keys the remote table.
type KeySchema string

const (
	// KeyByID keys rows by the resolved paper id.
	KeyByID KeySchema = "id"
	// KeyByTitle keys rows by the truncated paper title.
	KeyByTitle KeySchema = "title"
)

// ParseKeySchema converts a configured key column to a KeySchema.
func ParseKeySchema(s string) (KeySchema, error) {
	switch KeySchema(s) {
	case KeyByID, KeyByTitle:
		return KeySchema(s), nil
	case "":
		return KeyByID, nil
	default:
		return "", domain.NewValidationError("key_column", fmt.Sprintf("unsupported key column %q", s))
	}
}

// Key returns the remote key for p.
func (k KeySchema) Key(p *domain.Paper) string {
	if k == KeyByTitle {
		return TruncateTitle(p.Title)
	}
	return p.ID.String()
}

// NewRecord builds the row written when p is first liked.
func (k KeySchema) NewRecord(p *domain.Paper, count int64, now time.Time) Record {
	return Record{
		Key:       k.Key(p),
		Title:     TruncateTitle(p.Title),
		Count:     count,
		CreatedAt: now.UTC(),
	}
}

// TruncateTitle cuts title to MaxTitleLength characters.
func TruncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	r := []rune(title)
	return string(r[:MaxTitleLength])
}
