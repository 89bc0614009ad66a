// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/scorekeeper/internal/model"
)

// MutateFunc edits a user record in place and returns the point events to
// append to its history. Returning an error aborts the mutation and leaves
// the stored record and history unchanged.
type MutateFunc func(u *model.UserScore) ([]model.PointEvent, error)

// ScoreRepository stores user scores. Update is atomic per user: concurrent
// calls on the same id are serialized, calls on different ids are not.
type ScoreRepository interface {
	// Create inserts a new record and fills in Seq/CreatedAt/UpdatedAt.
	Create(ctx context.Context, u *model.UserScore) error
	// Get loads a record by id.
	Get(ctx context.Context, id uuid.UUID) (*model.UserScore, error)
	// Update runs fn on the locked record and persists the result together
	// with the events fn returned.
	Update(ctx context.Context, id uuid.UUID, fn MutateFunc) (*model.UserScore, error)
	// History returns up to n point events of the user, newest first.
	History(ctx context.Context, id uuid.UUID, n int) ([]model.PointEvent, error)
	// Top returns up to n records ordered by points desc, seq asc, id asc.
	Top(ctx context.Context, n int) ([]model.UserScore, error)
	// ListIDs returns all user ids in arrival order.
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}
