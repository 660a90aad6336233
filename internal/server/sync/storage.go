package sync

import (
	"context"
	"errors"

	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/server/models"
	"github.com/notemist/notemist/internal/server/repositories/notes"
)

// Storage binds the note repository to one user's collection. Every read
// and write the engine performs goes through it, so ownership scoping
// cannot be forgotten at a call site.
type Storage struct {
	userID string
	repo   notes.Repository
}

// NewStorage constructs a storage adapter for the given owner over the
// given repository binding (plain connection or transaction).
func NewStorage(userID string, repo notes.Repository) *Storage {
	return &Storage{userID: userID, repo: repo}
}

// Load returns the note with the given id, or nil when it does not exist
// or is owned by someone else.
func (s *Storage) Load(ctx context.Context, noteID string) (*models.Note, error) {
	note, err := s.repo.Get(ctx, s.userID, noteID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return note, nil
}

// Save upserts a note, forcing the owner to this storage's user.
func (s *Storage) Save(ctx context.Context, note *models.Note) error {
	note.UserID = s.userID
	return s.repo.Upsert(ctx, note)
}

// Delete tombstones a note. The row is retained so the deletion reaches
// other clients through delta computation.
func (s *Storage) Delete(ctx context.Context, note *models.Note) error {
	note.UserID = s.userID
	note.Deleted = true
	return s.repo.Upsert(ctx, note)
}

// ListChangedSince returns all notes, tombstones included, whose revision
// exceeds the given value, ascending by revision then id.
func (s *Storage) ListChangedSince(ctx context.Context, revision int64) ([]*models.Note, error) {
	return s.repo.SelectChangedSince(ctx, s.userID, revision)
}

// PurgeDeleted drops tombstones older than beforeRevision.
func (s *Storage) PurgeDeleted(ctx context.Context, beforeRevision int64) error {
	return s.repo.PurgeDeleted(ctx, s.userID, beforeRevision)
}
