package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sarbazinfo/sarbaz-server/internal/dbx"
	"github.com/sarbazinfo/sarbaz-server/internal/logging"
	"github.com/sarbazinfo/sarbaz-server/internal/server/billing"
	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
	"github.com/sarbazinfo/sarbaz-server/internal/server/repositories/repomanager"
)

// Entitlement is the client-visible premium state after a verification or
// reconciliation.
type Entitlement struct {
	IsPremium    bool
	PremiumUntil *time.Time
}

// BillingService verifies purchase proofs against the vendor clients,
// records them in the ledger and reconciles the user's cached entitlement.
type BillingService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	google      billing.Verifier
	apple       billing.Verifier
	logger      logging.Logger
	now         func() time.Time
}

func NewBillingService(db *sql.DB, m repomanager.RepositoryManager, google, apple billing.Verifier, logger logging.Logger) *BillingService {
	return &BillingService{
		db:          db,
		repomanager: m,
		google:      google,
		apple:       apple,
		logger:      logger,
		now:         time.Now,
	}
}

// VerifyGoogle checks a Google Play purchase token and applies the result to
// the user's entitlement.
func (s *BillingService) VerifyGoogle(ctx context.Context, userID int64, purchaseToken string) (*Entitlement, error) {
	outcome := s.google.Verify(ctx, billing.Proof{Token: purchaseToken})
	return s.apply(ctx, userID, models.VendorGoogle, outcome)
}

// VerifyApple checks a signed App Store transaction payload and applies the
// result to the user's entitlement.
func (s *BillingService) VerifyApple(ctx context.Context, userID int64, productID, payload, transactionID string) (*Entitlement, error) {
	outcome := s.apple.Verify(ctx, billing.Proof{
		Token:     transactionID,
		ProductID: productID,
		Payload:   payload,
	})
	return s.apply(ctx, userID, models.VendorApple, outcome)
}

// apply maps a verification outcome onto the ledger and the entitlement
// cache. Denied proofs and unreachable vendors both answer "not premium"
// with nothing recorded; only the logs tell the two apart.
func (s *BillingService) apply(ctx context.Context, userID int64, vendor string, outcome billing.Outcome) (*Entitlement, error) {
	switch outcome.Status {
	case billing.StatusVerified:
		return s.recordVerified(ctx, userID, vendor, outcome.Receipt)
	case billing.StatusUpstreamError:
		s.logger.Error(ctx, "vendor verification unavailable", "vendor", vendor, "user_id", userID, "error", outcome.Reason)
		return &Entitlement{}, nil
	default:
		s.logger.Info(ctx, "purchase verification denied", "vendor", vendor, "user_id", userID, "error", outcome.Reason)
		return &Entitlement{}, nil
	}
}

// recordVerified upserts the receipt into the ledger and reconciles the
// user's cached premium window, all under a row lock on the user so that
// concurrent verifications serialize.
func (s *BillingService) recordVerified(ctx context.Context, userID int64, vendor string, receipt *billing.Receipt) (*Entitlement, error) {
	var ent *Entitlement

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetByIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("error locking account: %v", err)
		}

		row := &models.Purchase{
			ID:            uuid.NewString(),
			UserID:        userID,
			Vendor:        vendor,
			PurchaseToken: receipt.Token,
			ProductID:     receipt.ProductID,
			IsActive:      receipt.Entitled,
		}
		if !receipt.PurchasedAt.IsZero() {
			row.PurchasedAt = &receipt.PurchasedAt
		}
		if !receipt.ExpiresAt.IsZero() {
			expiresAt := receipt.ExpiresAt
			row.ExpiresAt = &expiresAt
		}

		saved, err := s.repomanager.Purchases(tx).Upsert(ctx, row)
		if err != nil {
			return fmt.Errorf("error upserting purchase: %v", err)
		}

		if saved.UserID != userID {
			// The token is already bound to another account; the ledger
			// fields were refreshed but this caller gains nothing.
			s.logger.Warn(ctx, "purchase token bound to another account",
				"vendor", vendor, "user_id", userID, "owner_id", saved.UserID)
			ent = &Entitlement{}
			return nil
		}

		ent, err = s.reconcile(ctx, tx, user, receipt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ent, nil
}

// reconcile recomputes the cached premium window after a ledger change.
// An entitled receipt can only extend the window; anything else re-derives
// it from the remaining active rows.
func (s *BillingService) reconcile(ctx context.Context, tx dbx.DBTX, user *models.User, receipt *billing.Receipt) (*Entitlement, error) {
	if receipt.Entitled {
		until := receipt.ExpiresAt
		if user.PremiumUntil != nil && user.PremiumUntil.After(until) {
			until = *user.PremiumUntil
		}
		if err := s.repomanager.Users(tx).SetPremiumUntil(ctx, user.ID, &until); err != nil {
			return nil, fmt.Errorf("error caching entitlement: %v", err)
		}
		return &Entitlement{IsPremium: true, PremiumUntil: &until}, nil
	}

	until, err := derivePremium(ctx, s.repomanager, tx, user.ID, s.now())
	if err != nil {
		return nil, err
	}
	return &Entitlement{IsPremium: until != nil, PremiumUntil: until}, nil
}

// derivePremium recomputes premium_until from the active, unexpired ledger
// rows and stores it; nil clears the cache. Shared by receipt verification
// and the background sweep.
func derivePremium(ctx context.Context, m repomanager.RepositoryManager, tx dbx.DBTX, userID int64, now time.Time) (*time.Time, error) {
	until, err := m.Purchases(tx).LatestActiveExpiry(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("error deriving entitlement: %v", err)
	}
	if err := m.Users(tx).SetPremiumUntil(ctx, userID, until); err != nil {
		return nil, fmt.Errorf("error caching entitlement: %v", err)
	}
	return until, nil
}
