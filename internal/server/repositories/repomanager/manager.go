package repomanager

import (
	"context"
	"database/sql"

	"github.com/notemist/notemist/internal/dbx"
	"github.com/notemist/notemist/internal/server/repositories/accesstokens"
	"github.com/notemist/notemist/internal/server/repositories/notes"
	"github.com/notemist/notemist/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// can run inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Notes(db dbx.DBTX) notes.Repository
	AccessTokens(db dbx.DBTX) accesstokens.Repository
}
