package accesstokens

import (
	"context"
	"time"

	"github.com/notemist/notemist/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.AccessToken) error
	Find(ctx context.Context, id string) (*models.AccessToken, error)
	Revoke(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) error
}
