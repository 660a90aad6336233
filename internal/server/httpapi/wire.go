package httpapi

import (
	"time"

	"github.com/notemist/notemist/internal/server/models"
)

// Request/response bodies for the JSON API. Note bodies cross the wire in
// display markup; conversion to and from the stored form happens in the
// handlers, never below them.

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type manifestPayload struct {
	ServerID         string `json:"server_id"`
	CurrentRevision  int64  `json:"current_revision"`
	LastSyncRevision int64  `json:"last_sync_revision"`
}

type notePayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ChangedAt time.Time `json:"changed_at"`
	Revision  int64     `json:"revision"`
	Deleted   bool      `json:"deleted,omitempty"`
}

type noteChangePayload struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	BaseRevision    int64     `json:"base_revision"`
	Deleted         bool      `json:"deleted,omitempty"`
	ClientTimestamp time.Time `json:"client_timestamp"`
}

type syncRequest struct {
	Manifest manifestPayload     `json:"manifest"`
	Changes  []noteChangePayload `json:"changes"`
}

type syncResponse struct {
	Manifest  manifestPayload `json:"manifest"`
	Notes     []notePayload   `json:"notes"`
	Conflicts []string        `json:"conflicts,omitempty"`
}

type notesResponse struct {
	Notes []notePayload `json:"notes"`
}

type uploadResponse struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
}

type downloadResponse struct {
	DownloadURL string `json:"download_url"`
}

func notePayloadFrom(n *models.Note, body string) notePayload {
	return notePayload{
		ID:        n.ID,
		Title:     n.Title,
		Body:      body,
		ChangedAt: n.ChangedAt,
		Revision:  n.Revision,
		Deleted:   n.Deleted,
	}
}
