package models

import "time"

// Note is a single note owned by one user. The body is opaque storage
// markup; the sync engine never inspects it.
type Note struct {
	ID     string
	UserID string
	Title  string
	Body   string
	// ChangedAt is the client wall clock of the last modification, used
	// by the last-writer-wins conflict policy.
	ChangedAt time.Time
	// Revision is the sync revision at which the note was last modified.
	Revision int64
	// Deleted marks a tombstone. Tombstones are retained so deletions
	// propagate to other clients' next sync.
	Deleted bool

	// AttachmentKey is the object-storage key of the note's binary
	// attachment, empty when there is none.
	AttachmentKey string
	// AttachmentStatus tracks the upload state ("pending", "uploaded").
	AttachmentStatus string
}
