// Package users provides a PostgreSQL-backed repository for account records.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sarbazinfo/sarbaz-server/internal/common"
	"github.com/sarbazinfo/sarbaz-server/internal/dbx"
	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
)

const userColumns = `id, external_uid, provider, email, name, avatar_url, premium_until, is_blocked, blocked_reason, last_login_at, created_at`

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (external_uid, provider, email, name, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.ExternalUID, user.Provider, user.Email, user.Name, user.AvatarURL).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByExternalUID(ctx context.Context, externalUID string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE external_uid = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, externalUID))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE id = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate takes a row lock so concurrent entitlement reconciliations
// for the same user serialize.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE id = $1
		FOR UPDATE
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE users SET last_login_at = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetPremiumUntil(ctx context.Context, id int64, until *time.Time) error {
	query := `
		UPDATE users SET premium_until = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, until); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `
		DELETE FROM users
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.ExternalUID, &user.Provider, &user.Email,
		&user.Name, &user.AvatarURL, &user.PremiumUntil, &user.IsBlocked,
		&user.BlockedReason, &user.LastLoginAt, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
