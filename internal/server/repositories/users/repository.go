package users

import (
	"context"
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
)

type Repository interface {
	// Create inserts a new account. Returns common.ErrorAlreadyExists when
	// another row already holds the same external uid.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByExternalUID(ctx context.Context, externalUID string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	// Must be called inside a transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	// SetPremiumUntil replaces the cached entitlement window end; nil clears it.
	SetPremiumUntil(ctx context.Context, id int64, until *time.Time) error
	Delete(ctx context.Context, id int64) error
}
