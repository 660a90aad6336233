// Package httpapi exposes the server's JSON API: registration, token
// issuance, note synchronization, and attachment brokering. It is the only
// layer that speaks HTTP; everything below works in domain terms.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/logging"
	"github.com/notemist/notemist/internal/server/config"
	"github.com/notemist/notemist/internal/server/markup"
	"github.com/notemist/notemist/internal/server/models"
	"github.com/notemist/notemist/internal/server/services"
)

// UserRegistrar is the slice of UserService the API needs.
type UserRegistrar interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	ResolveUsername(ctx context.Context, token string) (string, error)
}

// SessionOpener opens sync sessions for authenticated users.
type SessionOpener interface {
	Open(ctx context.Context, username string) (*services.Session, error)
}

// AttachmentBroker is the slice of AttachmentService the API needs.
type AttachmentBroker interface {
	RequestUpload(ctx context.Context, username, noteID string) (string, string, error)
	MarkUploaded(ctx context.Context, username, noteID string) error
	GetDownloadURL(ctx context.Context, username, noteID string) (string, error)
}

// API wires the services into a chi router.
type API struct {
	users       UserRegistrar
	sessions    SessionOpener
	attachments AttachmentBroker
	markup      markup.Converter
	syncTimeout time.Duration
	rateRPS     float64
	rateBurst   int
	log         logging.Logger
}

// New constructs the API front end.
func New(users UserRegistrar, sessions SessionOpener, attachments AttachmentBroker,
	conv markup.Converter, cfg *config.Config, log logging.Logger) *API {
	return &API{
		users:       users,
		sessions:    sessions,
		attachments: attachments,
		markup:      conv,
		syncTimeout: cfg.SyncTimeout,
		rateRPS:     cfg.TokenRateLimitRPS,
		rateBurst:   cfg.TokenRateLimitBurst,
		log:         log.With("module", "httpapi"),
	}
}

// Router builds the route table.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(a.rateRPS, a.rateBurst))
		r.Post("/api/register", a.handleRegister)
		r.Post("/api/token", a.handleToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(a.users))
		r.Post("/api/sync", a.handleSync)
		r.Get("/api/notes", a.handleNotes)
		r.Post("/api/notes/{note_id}/attachment", a.handleRequestUpload)
		r.Post("/api/notes/{note_id}/attachment/uploaded", a.handleMarkUploaded)
		r.Get("/api/notes/{note_id}/attachment", a.handleDownloadURL)
	})

	return r
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	user, err := a.users.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorInternal) {
			writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{ID: user.ID, Username: user.UserName})
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	token, err := a.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, errorResponse("invalid credentials"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token})
}

// handleSync runs one full sync conversation: open a session, exchange
// deltas, commit, close. The session is closed on every path; only the
// success path surfaces a close failure, elsewhere the original error wins.
func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	username, ok := UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 32<<20) // 32MB

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.syncTimeout)
	defer cancel()

	sess, err := a.sessions.Open(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrUnknownUser) {
			writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}
	discard := func() {
		if err := sess.Close(ctx); err != nil {
			a.log.Warn(ctx, "session close failed", "user", username, "error", err)
		}
	}

	engine := sess.Engine()

	delta, err := engine.BeginSync(ctx, models.SyncManifest{
		ServerID:         req.Manifest.ServerID,
		LastSyncRevision: req.Manifest.LastSyncRevision,
	})
	if err != nil {
		discard()
		if errors.Is(err, common.ErrServerIDMismatch) {
			writeJSON(w, http.StatusGone, errorResponse("sync state reset, full resync required"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	changes := make([]models.NoteChange, 0, len(req.Changes))
	for _, c := range req.Changes {
		body, err := a.markup.ToStorageFormat(c.Body)
		if err != nil {
			discard()
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid note body"))
			return
		}
		changes = append(changes, models.NoteChange{
			ID:              c.ID,
			Title:           c.Title,
			Body:            body,
			BaseRevision:    c.BaseRevision,
			Deleted:         c.Deleted,
			ClientTimestamp: c.ClientTimestamp,
		})
	}

	report, err := engine.ApplyClientChanges(ctx, changes)
	if err != nil {
		discard()
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	if _, err := engine.Commit(ctx); err != nil {
		discard()
		if errors.Is(err, common.ErrRevisionConflict) {
			writeJSON(w, http.StatusConflict, errorResponse("revision conflict, retry sync"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	notes, err := a.displayNotes(delta.Notes)
	if err != nil {
		discard()
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	manifest := engine.Manifest()
	if err := sess.Close(ctx); err != nil {
		a.log.Error(ctx, "sync state write-back failed", "user", username, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Manifest: manifestPayload{
			ServerID:        manifest.ServerID,
			CurrentRevision: manifest.CurrentRevision,
		},
		Notes:     notes,
		Conflicts: report.SupersededIDs,
	})
}

// handleNotes serves the read-only delta: every note changed after the
// given revision.
func (a *API) handleNotes(w http.ResponseWriter, r *http.Request) {
	username, ok := UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid since parameter"))
			return
		}
		since = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.syncTimeout)
	defer cancel()

	sess, err := a.sessions.Open(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrUnknownUser) {
			writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	delta, err := sess.Engine().BeginSync(ctx, models.SyncManifest{LastSyncRevision: since})
	if err != nil {
		_ = sess.Close(ctx)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	notes, err := a.displayNotes(delta.Notes)
	if err != nil {
		_ = sess.Close(ctx)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	if err := sess.Close(ctx); err != nil {
		a.log.Error(ctx, "sync state write-back failed", "user", username, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	writeJSON(w, http.StatusOK, notesResponse{Notes: notes})
}

func (a *API) displayNotes(in []*models.Note) ([]notePayload, error) {
	out := make([]notePayload, 0, len(in))
	for _, n := range in {
		body, err := a.markup.ToDisplayFormat(n.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, notePayloadFrom(n, body))
	}
	return out, nil
}

func (a *API) handleRequestUpload(w http.ResponseWriter, r *http.Request) {
	username, ok := UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	noteID := chi.URLParam(r, "note_id")

	key, url, err := a.attachments.RequestUpload(r.Context(), username, noteID)
	if err != nil {
		a.writeAttachmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Key: key, UploadURL: url})
}

func (a *API) handleMarkUploaded(w http.ResponseWriter, r *http.Request) {
	username, ok := UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	noteID := chi.URLParam(r, "note_id")

	if err := a.attachments.MarkUploaded(r.Context(), username, noteID); err != nil {
		a.writeAttachmentError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	username, ok := UsernameFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	noteID := chi.URLParam(r, "note_id")

	url, err := a.attachments.GetDownloadURL(r.Context(), username, noteID)
	if err != nil {
		a.writeAttachmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, downloadResponse{DownloadURL: url})
}

func (a *API) writeAttachmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrUnknownUser):
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
	case errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse("not found"))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}
