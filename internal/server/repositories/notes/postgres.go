// Package notes provides the PostgreSQL-backed repository for note
// persistence and the delta queries the sync engine runs.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/dbx"
	"github.com/notemist/notemist/internal/server/models"
)

// PostgresRepository implements note storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns one note scoped by owner, or ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID, noteID string) (*models.Note, error) {
	query := `
		SELECT id, user_id, title, body, changed_at, revision, deleted,
		       attachment_key, attachment_status
		FROM notes
		WHERE user_id = $1 AND id = $2
	`
	note := &models.Note{}
	err := r.db.QueryRowContext(ctx, query, userID, noteID).Scan(
		&note.ID, &note.UserID, &note.Title, &note.Body, &note.ChangedAt,
		&note.Revision, &note.Deleted, &note.AttachmentKey, &note.AttachmentStatus)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return note, nil
}

// Upsert creates or updates a note by (user_id, id). Attachment columns keep
// their values on update so metadata set between syncs survives note edits.
func (r *PostgresRepository) Upsert(ctx context.Context, note *models.Note) error {
	query := `
		INSERT INTO notes (id, user_id, title, body, changed_at, revision, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, id)
		DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			changed_at = EXCLUDED.changed_at,
			revision = EXCLUDED.revision,
			deleted = EXCLUDED.deleted
	`
	res, err := r.db.ExecContext(ctx, query,
		note.ID, note.UserID, note.Title, note.Body, note.ChangedAt, note.Revision, note.Deleted)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// SelectChangedSince returns the delta for one user: every note whose
// revision exceeds minRevision, tombstones included, in deterministic order.
func (r *PostgresRepository) SelectChangedSince(ctx context.Context, userID string, minRevision int64) ([]*models.Note, error) {
	query := `
		SELECT id, user_id, title, body, changed_at, revision, deleted,
		       attachment_key, attachment_status
		FROM notes
		WHERE user_id = $1 AND revision > $2
		ORDER BY revision, id
	`
	rows, err := r.db.QueryContext(ctx, query, userID, minRevision)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.Note
	for rows.Next() {
		var item models.Note
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.Title, &item.Body, &item.ChangedAt,
			&item.Revision, &item.Deleted, &item.AttachmentKey, &item.AttachmentStatus,
		); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PurgeDeleted removes tombstones whose revision is below the retention
// point. Deletions older than this can no longer reach any client.
func (r *PostgresRepository) PurgeDeleted(ctx context.Context, userID string, beforeRevision int64) error {
	query := `
		DELETE FROM notes
		WHERE user_id = $1 AND deleted AND revision < $2
	`
	if _, err := r.db.ExecContext(ctx, query, userID, beforeRevision); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetAttachment updates the attachment metadata of one note.
func (r *PostgresRepository) SetAttachment(ctx context.Context, userID, noteID, key, status string) error {
	query := `
		UPDATE notes
		SET attachment_key = $3, attachment_status = $4
		WHERE user_id = $1 AND id = $2
	`
	res, err := r.db.ExecContext(ctx, query, userID, noteID, key, status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
