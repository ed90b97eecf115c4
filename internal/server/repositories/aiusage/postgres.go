// Package aiusage provides the PostgreSQL-backed per-day AI request counter.
package aiusage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sarbazinfo/sarbaz-server/internal/common"
	"github.com/sarbazinfo/sarbaz-server/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Increment counts on admission: the conflict branch only fires while the
// stored count is below the limit, so concurrent requests can never push the
// counter past it. A statement that updates nothing returns no rows, which
// maps to ErrDailyLimitReached.
func (r *PostgresRepository) Increment(ctx context.Context, userID int64, day time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, common.ErrDailyLimitReached
	}
	query := `
		INSERT INTO ai_usage (user_id, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, day) DO UPDATE SET count = ai_usage.count + 1
		WHERE ai_usage.count < $3
		RETURNING count
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, day, limit).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrDailyLimitReached
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) CountFor(ctx context.Context, userID int64, day time.Time) (int, error) {
	query := `
		SELECT count FROM ai_usage
		WHERE user_id = $1 AND day = $2
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, day).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}
