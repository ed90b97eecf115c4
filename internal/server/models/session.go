package models

import "time"

// Session is one issued refresh token. Only the token's SHA-256 hash is
// stored; the raw value is returned to the client exactly once.
type Session struct {
	ID        string
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Usable reports whether the session can still be redeemed: not revoked and
// not past its expiry.
func (s *Session) Usable(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
