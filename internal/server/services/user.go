// Package services contains server-side business logic. This file implements
// UserService: registration, credential verification, and the access token
// lifecycle (issue, resolve, revoke).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/server/auth"
	"github.com/notemist/notemist/internal/server/config"
	"github.com/notemist/notemist/internal/server/models"
	"github.com/notemist/notemist/internal/server/repositories/repomanager"
)

// UserService provides account and authentication operations:
//   - Register: create accounts (inactive until an admin activates them)
//   - VerifyCredentials / Login: verify a password and mint access tokens
//   - ResolveUsername / Revoke: bearer token resolution and revocation
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// Register creates a new account with the given username and password. The
// account starts deactivated and unverified; an administrator flips both
// flags before the first login can succeed.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		UserName:     username,
		PasswordHash: hash,
	}

	repo := s.repomanager.Users(s.db)
	u, err := repo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %v", err)
	}
	return u, nil
}

// verify resolves the account and checks the password. Every failure mode
// (missing user, deactivated, unverified, wrong password) yields false with
// no distinguishing detail, so callers cannot enumerate accounts.
func (s *UserService) verify(ctx context.Context, username, password string) (*models.User, bool) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, false
	}
	if !user.IsActivated || !user.IsVerified {
		return nil, false
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, false
	}
	return user, true
}

// VerifyCredentials reports whether the username/password pair belongs to a
// usable account.
func (s *UserService) VerifyCredentials(ctx context.Context, username, password string) bool {
	_, ok := s.verify(ctx, username, password)
	return ok
}

// Login verifies the credentials and, on success, issues a signed access
// token whose jti is persisted so the token can later be revoked.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, ok := s.verify(ctx, username, password)
	if !ok {
		return "", common.ErrorUnauthorized
	}

	tokenID := uuid.NewString()

	repo := s.repomanager.AccessTokens(s.db)
	err := repo.Create(ctx, &models.AccessToken{
		ID:        tokenID,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.accessTokenValidityDuration),
	})
	if err != nil {
		return "", common.ErrorInternal
	}

	token, err := auth.GenerateToken(username, tokenID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", common.ErrorInternal
	}
	return token, nil
}

// ResolveUsername maps a bearer token back to its username. The signature
// must verify and the persisted jti row must exist, be unexpired, and be
// unrevoked; any failure yields ErrorUnauthorized.
func (s *UserService) ResolveUsername(ctx context.Context, tokenString string) (string, error) {
	claims, err := auth.ParseToken(tokenString, s.jwtSecret)
	if err != nil {
		return "", common.ErrorUnauthorized
	}

	repo := s.repomanager.AccessTokens(s.db)
	record, err := repo.Find(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", common.ErrorInternal
	}
	if record.Revoked || record.ExpiresAt.Before(time.Now()) {
		return "", common.ErrorUnauthorized
	}

	return claims.Username, nil
}

// Revoke invalidates the token server-side. Revoking an unknown or
// malformed token is not an error.
func (s *UserService) Revoke(ctx context.Context, tokenString string) error {
	claims, err := auth.ParseToken(tokenString, s.jwtSecret)
	if err != nil {
		return nil
	}
	err = s.repomanager.AccessTokens(s.db).Revoke(ctx, claims.ID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("error revoking token: %v", err)
	}
	return nil
}

// CleanupExpired removes access token rows whose expiry has passed.
func (s *UserService) CleanupExpired(ctx context.Context) error {
	return s.repomanager.AccessTokens(s.db).DeleteExpired(ctx, time.Now())
}
