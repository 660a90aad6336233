// Package accesstokens provides the PostgreSQL-backed repository for issued
// access tokens, keyed by the token's jti.
package accesstokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/dbx"
	"github.com/notemist/notemist/internal/server/models"
)

// PostgresRepository implements token storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the record of a freshly issued token.
func (r *PostgresRepository) Create(ctx context.Context, token *models.AccessToken) error {
	query := `
		INSERT INTO access_tokens (id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, token.ID, token.UserID, token.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Find returns the token row for the given jti, or ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, id string) (*models.AccessToken, error) {
	query := `
		SELECT id, user_id, expires_at, revoked
		FROM access_tokens
		WHERE id = $1
	`
	token := &models.AccessToken{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID, &token.UserID, &token.ExpiresAt, &token.Revoked)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

// Revoke flips the revocation flag. Revoking an unknown token is not an
// error; the token is unusable either way.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE access_tokens
		SET revoked = true
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpired removes rows whose expiry lies before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	query := `
		DELETE FROM access_tokens
		WHERE expires_at < $1
	`
	if _, err := r.db.ExecContext(ctx, query, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
