package users

import (
	"context"

	"github.com/notemist/notemist/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// ReplaceSyncState writes the user's manifest server id and advances
	// current_revision from oldRevision to newRevision as a single
	// compare-and-swap. A stale oldRevision yields ErrRevisionConflict.
	ReplaceSyncState(ctx context.Context, userID, serverID string, oldRevision, newRevision int64) error
}
