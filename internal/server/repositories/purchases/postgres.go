// Package purchases provides the PostgreSQL-backed purchase ledger. One row
// per (vendor, purchase token); rows are refreshed on re-verification and
// survive as an audit trail.
package purchases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/dbx"
	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
)

const purchaseColumns = `id, user_id, vendor, purchase_token, product_id, purchased_at, expires_at, is_active, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert relies on the (vendor, purchase_token) unique constraint: the
// conflict branch keeps the original id and user_id, so a token replayed by
// another account stays bound to whoever verified it first.
func (r *PostgresRepository) Upsert(ctx context.Context, purchase *models.Purchase) (*models.Purchase, error) {
	query := `
		INSERT INTO purchases (id, user_id, vendor, purchase_token, product_id, purchased_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (vendor, purchase_token) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			purchased_at = COALESCE(EXCLUDED.purchased_at, purchases.purchased_at),
			expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING id, user_id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		purchase.ID, purchase.UserID, purchase.Vendor, purchase.PurchaseToken,
		purchase.ProductID, purchase.PurchasedAt, purchase.ExpiresAt, purchase.IsActive).
		Scan(&purchase.ID, &purchase.UserID, &purchase.CreatedAt, &purchase.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return purchase, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + ` FROM purchases
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectPurchases(rows)
}

func (r *PostgresRepository) ListActive(ctx context.Context, vendor string) ([]*models.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + ` FROM purchases
		WHERE vendor = $1 AND is_active
		ORDER BY updated_at
	`
	rows, err := r.db.QueryContext(ctx, query, vendor)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectPurchases(rows)
}

func (r *PostgresRepository) LatestActiveExpiry(ctx context.Context, userID int64, now time.Time) (*time.Time, error) {
	query := `
		SELECT expires_at FROM purchases
		WHERE user_id = $1 AND is_active AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1
	`
	var expiry time.Time
	err := r.db.QueryRowContext(ctx, query, userID, now).Scan(&expiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &expiry, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE purchases SET is_active = false, updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func collectPurchases(rows *sql.Rows) ([]*models.Purchase, error) {
	defer rows.Close()

	var result []*models.Purchase
	for rows.Next() {
		p := &models.Purchase{}
		err := rows.Scan(&p.ID, &p.UserID, &p.Vendor, &p.PurchaseToken,
			&p.ProductID, &p.PurchasedAt, &p.ExpiresAt, &p.IsActive,
			&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
