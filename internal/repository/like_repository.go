package repository

import (
	"github.com/helixir/paper-timeline/internal/likes"
)

// LikeRepository is the PostgreSQL-backed remote counter table. It supports
// server-side increments in addition to the plain store contract.
type LikeRepository interface {
	likes.Store
	likes.Incrementer
}
