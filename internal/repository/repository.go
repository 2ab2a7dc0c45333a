// Package repository provides the PostgreSQL persistence used by the paper
// timeline.
//
// # Repositories
//
//   - PaperRepository: stored paper documents, the source of the "postgres"
//     corpus and the target of the import command
//   - LikeRepository: remote like counters, one row per paper key
//
// # Error Handling
//
// Methods return domain errors so callers never depend on pgx:
//
//   - domain.ErrNotFound: the row does not exist
//   - domain.ErrAlreadyExists: a unique constraint rejected an insert
//   - domain.ErrInvalidInput: invalid parameters provided
//
// # Transactions
//
// Constructors accept DBTX, so a repository can be bound to a pgx.Tx:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    _, err := repository.NewPgPaperRepository(tx, "papers").Import(ctx, docs)
//	    return err
//	})
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/paper-timeline/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// PostgreSQL error codes.
const (
	pgUniqueViolation = "23505" // unique_violation
)

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// ident quotes a table or column name.
func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
