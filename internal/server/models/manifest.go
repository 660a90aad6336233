package models

import "time"

// SyncManifest is the versioning state exchanged between client and server
// to determine what has changed since the last sync.
type SyncManifest struct {
	// ServerID identifies this instance of the user's note collection.
	// Generated once, never reused even if the manifest is reset.
	ServerID string
	// CurrentRevision is the server's monotonically increasing revision
	// counter.
	CurrentRevision int64
	// LastSyncRevision is the revision the client last observed. Only
	// meaningful on client-supplied manifests.
	LastSyncRevision int64
}

// NoteChange is one incoming client-side modification.
type NoteChange struct {
	ID    string
	Title string
	Body  string
	// BaseRevision is the server revision the client's copy is based on.
	BaseRevision int64
	// Deleted requests a tombstone.
	Deleted         bool
	ClientTimestamp time.Time
}

// ConflictReport lists the client changes that were superseded by newer
// server-side edits. A conflict is a normal sync outcome, not an error;
// the caller must surface it so the client can rename or duplicate locally.
type ConflictReport struct {
	SupersededIDs []string
}

// ServerDelta is the set of server-side notes the client has not seen yet,
// ordered ascending by revision then by id for deterministic replay.
type ServerDelta struct {
	Notes []*Note
}
