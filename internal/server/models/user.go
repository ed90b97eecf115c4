// Package models defines server-side data models persisted in the database.
package models

import (
	"math"
	"time"
)

// User is the identity-anchored account record. ExternalUID is the identity
// provider's immutable unique id and the primary correlation key; everything
// else is profile or derived state.
//
// PremiumUntil caches the entitlement window end. Invariant: when set, it
// equals the maximum active expiry across the user's purchase rows. It is
// reconciled on every receipt verification and by the background sync.
type User struct {
	ID            int64
	ExternalUID   string
	Provider      string
	Email         string
	Name          string
	AvatarURL     string
	PremiumUntil  *time.Time
	IsBlocked     bool
	BlockedReason string
	LastLoginAt   *time.Time
	CreatedAt     time.Time
}

// IsPremium reports whether the cached entitlement window covers now.
func (u *User) IsPremium(now time.Time) bool {
	return u.PremiumUntil != nil && u.PremiumUntil.After(now)
}

// PremiumDaysLeft returns the number of days until the entitlement window
// closes, rounded up; 0 when the user is not premium.
func (u *User) PremiumDaysLeft(now time.Time) int {
	if !u.IsPremium(now) {
		return 0
	}
	return int(math.Ceil(u.PremiumUntil.Sub(now).Hours() / 24))
}
