// Package common defines sentinel errors shared across the server layers.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")

	// ErrorUnauthorized covers failed credential checks and unresolved
	// tokens alike. It deliberately carries no detail about which check
	// failed, so callers cannot enumerate accounts.
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrUnknownUser is returned when a sync session is opened for a
	// username that has no account record.
	ErrUnknownUser = errors.New("unknown user")

	// ErrServerIDMismatch means the client's manifest references a
	// different note-collection instance. The client must discard its
	// local sync state and resync from scratch.
	ErrServerIDMismatch = errors.New("server id mismatch")

	// ErrRevisionConflict is the optimistic-concurrency failure on the
	// per-user revision counter. Retryable: no state was mutated.
	ErrRevisionConflict = errors.New("revision conflict")

	// ErrSyncAborted wraps any failure between the start of applying
	// client changes and a successful commit. No partial writes survive.
	ErrSyncAborted = errors.New("sync aborted")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
