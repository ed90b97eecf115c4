// Package sessions declares the repository contract for refresh-token
// sessions in persistent storage.
package sessions

import (
	"context"
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
)

// Repository defines operations for issuing, looking up and revoking
// sessions. Only token hashes ever reach this layer.
type Repository interface {
	// Create stores a new session row.
	Create(ctx context.Context, session *models.Session) error

	// FindByHash looks a session up by its token hash and returns it with
	// metadata. Returns common.ErrorNotFound when the hash is unknown.
	FindByHash(ctx context.Context, tokenHash string) (*models.Session, error)

	// Revoke marks the session revoked if it is not revoked yet and reports
	// whether this call did the revoking. The conditional update is what
	// makes refresh rotation single-use under concurrency.
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)

	// RevokeByHash revokes whatever session the hash names. Unknown or
	// already revoked hashes are not an error.
	RevokeByHash(ctx context.Context, tokenHash string, at time.Time) error

	// RevokeAllForUser revokes every live session of the user and returns
	// how many were revoked.
	RevokeAllForUser(ctx context.Context, userID int64, at time.Time) (int64, error)
}
