package models

import "time"

// AccessToken is the server-side record of an issued bearer token. The
// credential itself is a signed JWT carrying this row's ID as its jti;
// the row makes the token expirable and revocable.
type AccessToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
