package purchases

import (
	"context"
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
)

type Repository interface {
	// Upsert inserts the purchase or, when a row for (vendor, purchase
	// token) already exists, refreshes its verification fields. The owning
	// user of an existing row is never changed; callers must compare the
	// returned UserID against their own. Rows are never deleted here.
	Upsert(ctx context.Context, purchase *models.Purchase) (*models.Purchase, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Purchase, error)
	// ListActive returns every active row for the vendor, oldest
	// verification first.
	ListActive(ctx context.Context, vendor string) ([]*models.Purchase, error)
	// LatestActiveExpiry returns the greatest expiry among the user's
	// active, unexpired rows, or nil when there is none.
	LatestActiveExpiry(ctx context.Context, userID int64, now time.Time) (*time.Time, error)
	Deactivate(ctx context.Context, id string) error
}
