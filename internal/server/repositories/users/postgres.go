// Package users provides the PostgreSQL-backed repository for account
// records and the per-user sync state they carry.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/dbx"
	"github.com/notemist/notemist/internal/server/models"
)

// PostgresRepository implements user storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user record and fills in the generated id.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, password_hash, is_activated, is_verified)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.PasswordHash, user.IsActivated, user.IsVerified).Scan(&user.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// GetByUsername returns the user record for a username, or ErrorNotFound.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, is_activated, is_verified,
		       manifest_server_id, current_revision
		FROM users
		WHERE username = $1
	`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.UserName, &user.PasswordHash, &user.IsActivated, &user.IsVerified,
		&user.ManifestServerID, &user.CurrentRevision)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// ReplaceSyncState persists the manifest server id and the revision counter
// with an optimistic check on the previously observed revision. Zero rows
// updated means another session advanced the counter first.
func (r *PostgresRepository) ReplaceSyncState(ctx context.Context, userID, serverID string, oldRevision, newRevision int64) error {
	query := `
		UPDATE users
		SET manifest_server_id = $2, current_revision = $4
		WHERE id = $1 AND current_revision = $3
	`
	res, err := r.db.ExecContext(ctx, query, userID, serverID, oldRevision, newRevision)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrRevisionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
