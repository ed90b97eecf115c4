// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors. Every access-token failure maps to ErrInvalidToken and
	// every refresh failure (missing, revoked, expired) to
	// ErrInvalidRefreshToken; the exact cause is logged, never returned.
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// Token lifecycle errors, used internally for diagnostics before the
	// failure is collapsed into one of the uniform errors above.
	ErrTokenExpired = errors.New("token expired")

	// Account state errors.
	ErrUserBlocked = errors.New("account blocked")

	// Usage limits.
	ErrDailyLimitReached = errors.New("daily limit reached")
)
