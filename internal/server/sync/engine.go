// Package sync implements the reconciliation engine: it computes the delta
// between a client's last-known revision and the server's state, applies
// incoming changes with a last-writer-wins conflict policy, and advances the
// per-user revision counter in a single transaction.
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/dbx"
	"github.com/notemist/notemist/internal/logging"
	"github.com/notemist/notemist/internal/server/models"
	"github.com/notemist/notemist/internal/server/repositories/repomanager"
)

// State tracks the progress of one sync session.
type State int

const (
	StateIdle State = iota
	StateManifestLoaded
	StateDeltaComputed
	StateDeltaApplied
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateManifestLoaded:
		return "manifest-loaded"
	case StateDeltaComputed:
		return "delta-computed"
	case StateDeltaApplied:
		return "delta-applied"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Engine runs one sync session for one user. It buffers every mutation in
// memory and writes nothing until Commit, so abandoning a session is
// equivalent to never having started it.
type Engine struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	user      *models.User
	manifest  *models.SyncManifest
	state     State
	staged    map[string]*models.Note
	persisted bool
	log       logging.Logger
}

// NewEngine constructs an engine for the given user. The manifest starts
// from the user's stored sync state.
func NewEngine(db *sql.DB, rm repomanager.RepositoryManager, user *models.User, log logging.Logger) *Engine {
	return &Engine{
		db: db,
		rm: rm,
		user: user,
		manifest: &models.SyncManifest{
			ServerID:        user.ManifestServerID,
			CurrentRevision: user.CurrentRevision,
		},
		state:  StateIdle,
		staged: make(map[string]*models.Note),
		log:    log.With("module", "sync", "user", user.UserName),
	}
}

// Manifest returns the server-side manifest for this session.
func (e *Engine) Manifest() *models.SyncManifest {
	return e.manifest
}

// State returns the session state.
func (e *Engine) State() State {
	return e.state
}

// Persisted reports whether a committed transaction already wrote the
// user's sync state to the store during this session.
func (e *Engine) Persisted() bool {
	return e.persisted
}

func (e *Engine) storage(db dbx.DBTX) *Storage {
	return NewStorage(e.user.ID, e.rm.Notes(db))
}

// BeginSync checks the client manifest against the server's and computes the
// server delta: everything newer than the client's last-synced revision.
// A client bound to a different collection instance gets ErrServerIDMismatch
// before any delta work and must resync from scratch. An empty client
// ServerID means a first sync and matches anything.
func (e *Engine) BeginSync(ctx context.Context, client models.SyncManifest) (*models.ServerDelta, error) {
	if e.state != StateIdle {
		return nil, fmt.Errorf("begin sync in state %s", e.state)
	}
	e.state = StateManifestLoaded

	if client.ServerID != "" && client.ServerID != e.manifest.ServerID {
		e.state = StateAborted
		return nil, common.ErrServerIDMismatch
	}

	changed, err := e.storage(e.db).ListChangedSince(ctx, client.LastSyncRevision)
	if err != nil {
		e.state = StateAborted
		return nil, err
	}

	e.state = StateDeltaComputed
	return &models.ServerDelta{Notes: changed}, nil
}

// ApplyClientChanges stages the client's changes against the current server
// state. A change whose base revision still matches the server's copy (or
// that creates a new note) is staged at the next revision. A change racing
// a newer server-side edit is resolved last-writer-wins on the client
// timestamp; when the server copy is kept, the change's id is recorded in
// the conflict report so the client can surface it. Nothing is written
// until Commit.
func (e *Engine) ApplyClientChanges(ctx context.Context, changes []models.NoteChange) (*models.ConflictReport, error) {
	if e.state != StateDeltaComputed {
		return nil, fmt.Errorf("apply changes in state %s", e.state)
	}

	report := &models.ConflictReport{}
	st := e.storage(e.db)
	pendingRevision := e.manifest.CurrentRevision + 1

	for _, change := range changes {
		current, err := st.Load(ctx, change.ID)
		if err != nil {
			return nil, e.abort(err)
		}

		if current != nil && current.Revision > change.BaseRevision {
			if !change.ClientTimestamp.After(current.ChangedAt) {
				report.SupersededIDs = append(report.SupersededIDs, change.ID)
				continue
			}
			e.log.Debug(ctx, "conflict resolved for client", "note", change.ID)
		}

		e.staged[change.ID] = &models.Note{
			ID:        change.ID,
			UserID:    e.user.ID,
			Title:     change.Title,
			Body:      change.Body,
			ChangedAt: change.ClientTimestamp,
			Revision:  pendingRevision,
			Deleted:   change.Deleted,
		}
	}

	e.state = StateDeltaApplied
	return report, nil
}

// Commit writes all staged notes and advances the revision counter by
// exactly one, as a single all-or-nothing transaction. With nothing staged
// it is a no-op returning the unchanged revision. A lost compare-and-swap
// on the counter surfaces as ErrRevisionConflict: nothing was written and
// the caller may Restart and retry. Any other failure aborts the session.
func (e *Engine) Commit(ctx context.Context) (int64, error) {
	switch e.state {
	case StateDeltaComputed, StateDeltaApplied:
	default:
		return 0, fmt.Errorf("commit in state %s", e.state)
	}

	if len(e.staged) == 0 {
		e.state = StateCommitted
		return e.manifest.CurrentRevision, nil
	}

	newRevision := e.manifest.CurrentRevision + 1

	ids := make([]string, 0, len(e.staged))
	for id := range e.staged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		st := e.storage(tx)
		for _, id := range ids {
			note := e.staged[id]
			if note.Deleted {
				if err := st.Delete(ctx, note); err != nil {
					return err
				}
				continue
			}
			if err := st.Save(ctx, note); err != nil {
				return err
			}
		}
		return e.rm.Users(tx).ReplaceSyncState(ctx,
			e.user.ID, e.manifest.ServerID, e.manifest.CurrentRevision, newRevision)
	})
	if err != nil {
		if errors.Is(err, common.ErrRevisionConflict) {
			e.state = StateAborted
			e.staged = make(map[string]*models.Note)
			return 0, err
		}
		return 0, e.abort(err)
	}

	e.manifest.CurrentRevision = newRevision
	e.user.CurrentRevision = newRevision
	e.user.ManifestServerID = e.manifest.ServerID
	e.staged = make(map[string]*models.Note)
	e.persisted = true
	e.state = StateCommitted

	e.log.Info(ctx, "sync committed", "revision", newRevision, "changes", len(ids))
	return newRevision, nil
}

// Restart reloads the user's sync state so the caller can recompute the
// delta and retry after a revision conflict. The session returns to Idle
// with nothing staged.
func (e *Engine) Restart(ctx context.Context) error {
	user, err := e.rm.Users(e.db).GetByUsername(ctx, e.user.UserName)
	if err != nil {
		return err
	}

	// Keep a lazily assigned server id that has not reached the store yet.
	if user.ManifestServerID == "" {
		user.ManifestServerID = e.manifest.ServerID
	}

	e.user = user
	e.manifest.ServerID = user.ManifestServerID
	e.manifest.CurrentRevision = user.CurrentRevision
	e.staged = make(map[string]*models.Note)
	e.state = StateIdle
	return nil
}

func (e *Engine) abort(err error) error {
	e.state = StateAborted
	e.staged = make(map[string]*models.Note)
	return fmt.Errorf("%w: %w", common.ErrSyncAborted, err)
}
