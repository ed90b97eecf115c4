package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/dbx"
	"github.com/sarbazinfo/sarbaz-server/internal/logging"
	"github.com/sarbazinfo/sarbaz-server/internal/server/billing"
	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
	"github.com/sarbazinfo/sarbaz-server/internal/server/repositories/repomanager"
)

// SyncStats summarizes one sweep over the active ledger rows.
type SyncStats struct {
	Checked     int
	Refreshed   int
	Deactivated int
	Skipped     int
}

// SyncService periodically re-verifies active Google purchases so lapsed or
// refunded subscriptions lose their entitlement without the client calling
// in. Apple rows age out on their own: their expiry is part of the signed
// payload and LatestActiveExpiry ignores rows past it.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	billing     *BillingService
	google      billing.Verifier
	logger      logging.Logger
	interval    time.Duration
	now         func() time.Time
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, b *BillingService, google billing.Verifier, logger logging.Logger, interval time.Duration) *SyncService {
	return &SyncService{
		db:          db,
		repomanager: m,
		billing:     b,
		google:      google,
		logger:      logger,
		interval:    interval,
		now:         time.Now,
	}
}

// Run sweeps on the configured interval until the context is canceled.
func (s *SyncService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "entitlement sweep started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "entitlement sweep stopped")
			return
		case <-ticker.C:
			stats, err := s.SyncOnce(ctx)
			if err != nil {
				s.logger.Error(ctx, "entitlement sweep failed", "error", err)
				continue
			}
			s.logger.Info(ctx, "entitlement sweep finished",
				"checked", stats.Checked, "refreshed", stats.Refreshed,
				"deactivated", stats.Deactivated, "skipped", stats.Skipped)
		}
	}
}

// SyncOnce re-verifies every active Google row. A verified receipt refreshes
// the row and the owner's entitlement; a vendor rejection deactivates the
// row; an unreachable vendor leaves the row untouched for the next sweep, so
// an outage never strips anyone of premium.
func (s *SyncService) SyncOnce(ctx context.Context) (*SyncStats, error) {
	rows, err := s.repomanager.Purchases(s.db).ListActive(ctx, models.VendorGoogle)
	if err != nil {
		return nil, fmt.Errorf("error listing active purchases: %v", err)
	}

	stats := &SyncStats{}
	for _, row := range rows {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		outcome := s.google.Verify(ctx, billing.Proof{Token: row.PurchaseToken})
		switch outcome.Status {
		case billing.StatusVerified:
			if _, err := s.billing.recordVerified(ctx, row.UserID, row.Vendor, outcome.Receipt); err != nil {
				s.logger.Error(ctx, "sweep failed to refresh purchase", "purchase_id", row.ID, "error", err)
				stats.Skipped++
				continue
			}
			stats.Refreshed++
		case billing.StatusDenied:
			if err := s.deactivate(ctx, row); err != nil {
				s.logger.Error(ctx, "sweep failed to deactivate purchase", "purchase_id", row.ID, "error", err)
				stats.Skipped++
				continue
			}
			s.logger.Info(ctx, "purchase deactivated by sweep", "purchase_id", row.ID, "user_id", row.UserID, "error", outcome.Reason)
			stats.Deactivated++
		default:
			s.logger.Warn(ctx, "sweep skipping purchase, vendor unavailable", "purchase_id", row.ID, "error", outcome.Reason)
			stats.Skipped++
		}
	}
	return stats, nil
}

// deactivate retires a ledger row the vendor no longer recognizes and
// re-derives the owner's entitlement under the usual row lock.
func (s *SyncService) deactivate(ctx context.Context, row *models.Purchase) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).GetByIDForUpdate(ctx, row.UserID); err != nil {
			return fmt.Errorf("error locking account: %v", err)
		}
		if err := s.repomanager.Purchases(tx).Deactivate(ctx, row.ID); err != nil {
			return fmt.Errorf("error deactivating purchase: %v", err)
		}
		_, err := derivePremium(ctx, s.repomanager, tx, row.UserID, s.now())
		return err
	})
}
