// Package models defines the server-side records persisted in the database.
package models

import "time"

// User is an account record. ManifestServerID and CurrentRevision together
// form the server half of the user's sync manifest: ManifestServerID is
// assigned exactly once, lazily, on first session open, and CurrentRevision
// advances by exactly one per committed sync transaction with changes.
type User struct {
	ID               string
	UserName         string
	PasswordHash     string
	IsActivated      bool
	IsVerified       bool
	ManifestServerID string
	CurrentRevision  int64
	CreatedAt        time.Time
}
