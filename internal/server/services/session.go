package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/logging"
	"github.com/notemist/notemist/internal/server/config"
	"github.com/notemist/notemist/internal/server/models"
	"github.com/notemist/notemist/internal/server/repositories/repomanager"
	notesync "github.com/notemist/notemist/internal/server/sync"
)

// SessionService opens sync sessions. Sessions for the same username are
// serialized with an in-process mutex on top of the commit-time
// compare-and-swap, so a well-behaved single process never pays a
// revision-conflict retry.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	retention   int64
	locks       sync.Map // username -> *sync.Mutex
	log         logging.Logger
}

// NewSessionService constructs a SessionService using repositories and
// server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		retention:   cfg.TombstoneRetentionRevisions,
		log:         log.With("module", "session"),
	}
}

func (s *SessionService) userLock(username string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(username, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Session is one client's sync conversation. It must be closed on every
// path: Close is the durability point for lazily assigned sync state and
// releases the per-user lock.
type Session struct {
	svc              *SessionService
	user             *models.User
	engine           *notesync.Engine
	mu               *sync.Mutex
	assignedServerID bool
	closed           bool
}

// Open resolves the username to an account and returns a locked session
// around a fresh sync engine. An account-less username yields
// ErrUnknownUser. If the account has never synced, a collection server id
// is assigned here, exactly once; it reaches the store when the session
// commits or closes.
func (s *SessionService) Open(ctx context.Context, username string) (*Session, error) {
	mu := s.userLock(username)
	mu.Lock()

	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		mu.Unlock()
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownUser
		}
		return nil, fmt.Errorf("error resolving user: %w", err)
	}

	assigned := false
	if user.ManifestServerID == "" {
		user.ManifestServerID = uuid.NewString()
		assigned = true
		s.log.Info(ctx, "assigned collection server id", "user", username, "server_id", user.ManifestServerID)
	}

	return &Session{
		svc:              s,
		user:             user,
		engine:           notesync.NewEngine(s.db, s.repomanager, user, s.log),
		mu:               mu,
		assignedServerID: assigned,
	}, nil
}

// Engine returns the session's sync engine.
func (s *Session) Engine() *notesync.Engine {
	return s.engine
}

// Manifest returns the server-side manifest for this session.
func (s *Session) Manifest() *models.SyncManifest {
	return s.engine.Manifest()
}

// User returns the account this session belongs to.
func (s *Session) User() *models.User {
	return s.user
}

// Close writes back sync state the engine has not already persisted and
// releases the per-user lock. A failed write-back is returned, never
// swallowed. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.mu.Unlock()

	manifest := s.engine.Manifest()

	if s.assignedServerID && !s.engine.Persisted() {
		// Persist the assigned server id without advancing the revision.
		err := s.svc.repomanager.Users(s.svc.db).ReplaceSyncState(ctx,
			s.user.ID, manifest.ServerID, manifest.CurrentRevision, manifest.CurrentRevision)
		if err != nil {
			return fmt.Errorf("error writing back sync state: %w", err)
		}
	}

	if s.svc.retention > 0 {
		before := manifest.CurrentRevision - s.svc.retention
		if before > 0 {
			// Opportunistic cleanup; a failure here never fails the session.
			err := s.svc.repomanager.Notes(s.svc.db).PurgeDeleted(ctx, s.user.ID, before)
			if err != nil {
				s.svc.log.Warn(ctx, "tombstone purge failed", "user", s.user.UserName, "error", err)
			}
		}
	}

	return nil
}
