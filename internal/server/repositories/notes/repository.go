package notes

import (
	"context"

	"github.com/notemist/notemist/internal/server/models"
)

type Repository interface {
	// Get returns the note with the given id owned by userID, or
	// ErrorNotFound.
	Get(ctx context.Context, userID, noteID string) (*models.Note, error)
	// Upsert creates or updates a note. Attachment columns are left
	// untouched on update; they change only through SetAttachment.
	Upsert(ctx context.Context, note *models.Note) error
	// SelectChangedSince returns all notes (tombstones included) with
	// revision > minRevision, ordered ascending by revision then id.
	SelectChangedSince(ctx context.Context, userID string, minRevision int64) ([]*models.Note, error)
	// PurgeDeleted physically removes tombstones older than
	// beforeRevision.
	PurgeDeleted(ctx context.Context, userID string, beforeRevision int64) error
	// SetAttachment records the object-storage key and upload status of
	// a note's attachment.
	SetAttachment(ctx context.Context, userID, noteID, key, status string) error
}
