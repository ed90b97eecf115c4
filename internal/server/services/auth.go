// Package services holds the server's business logic: session lifecycle,
// receipt verification with entitlement reconciliation, the background
// entitlement sweep, AI chat metering and static app info.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sarbazinfo/sarbaz-server/internal/common"
	"github.com/sarbazinfo/sarbaz-server/internal/cryptox"
	"github.com/sarbazinfo/sarbaz-server/internal/dbx"
	"github.com/sarbazinfo/sarbaz-server/internal/identity"
	"github.com/sarbazinfo/sarbaz-server/internal/logging"
	"github.com/sarbazinfo/sarbaz-server/internal/server/auth"
	"github.com/sarbazinfo/sarbaz-server/internal/server/config"
	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
	"github.com/sarbazinfo/sarbaz-server/internal/server/repositories/repomanager"
)

const refreshTokenBytes = 48

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService owns the account and session lifecycle: social login, refresh
// rotation, logout and the access-token check run on every request.
type AuthService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	verifier                     identity.Verifier
	logger                       logging.Logger
	jwtSecret                    []byte
	jwtIssuer                    string
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	identityTimeout              time.Duration
	now                          func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, verifier identity.Verifier, logger logging.Logger, cfg *config.Config) *AuthService {
	return &AuthService{
		db:                           db,
		repomanager:                  m,
		verifier:                     verifier,
		logger:                       logger,
		jwtSecret:                    []byte(cfg.SecretKey),
		jwtIssuer:                    cfg.JWTIssuer,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		identityTimeout:              cfg.IdentityTimeout,
		now:                          time.Now,
	}
}

// Login exchanges a provider ID token for a token pair, creating the account
// on first sight. A signup race on the external uid is resolved by re-reading
// the row the winner inserted.
func (s *AuthService) Login(ctx context.Context, idToken string) (*models.User, *TokenPair, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, s.identityTimeout)
	defer cancel()

	claims, err := s.verifier.Verify(verifyCtx, idToken)
	if err != nil {
		s.logger.Info(ctx, "identity token rejected", "error", err)
		return nil, nil, common.ErrorUnauthorized
	}

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByExternalUID(ctx, claims.UID)
	if errors.Is(err, common.ErrorNotFound) {
		user, err = repo.Create(ctx, &models.User{
			ExternalUID: claims.UID,
			Provider:    claims.Provider,
			Email:       claims.Email,
			Name:        claims.Name,
			AvatarURL:   claims.Picture,
		})
		if errors.Is(err, common.ErrorAlreadyExists) {
			user, err = repo.GetByExternalUID(ctx, claims.UID)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error loading account: %v", err)
	}

	if user.IsBlocked {
		return nil, nil, common.ErrUserBlocked
	}

	now := s.now()
	if err := repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn(ctx, "failed to update last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}

	pair, err := s.generateTokenPair(ctx, s.db, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued, atomically. Every failure surfaces as
// common.ErrInvalidRefreshToken; the cause is only logged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	hash := cryptox.HashToken(refreshToken)

	var pair *TokenPair

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessionRepo := s.repomanager.Sessions(tx)

		session, err := sessionRepo.FindByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidRefreshToken
			}
			return fmt.Errorf("error searching session: %v", err)
		}

		now := s.now()
		if !session.Usable(now) {
			if session.RevokedAt != nil {
				s.logger.Warn(ctx, "refresh token reuse detected", "session_id", session.ID, "user_id", session.UserID)
			}
			return common.ErrInvalidRefreshToken
		}

		revoked, err := sessionRepo.Revoke(ctx, session.ID, now)
		if err != nil {
			return fmt.Errorf("error revoking session: %v", err)
		}
		if !revoked {
			// A concurrent redemption won the conditional update.
			return common.ErrInvalidRefreshToken
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, session.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidRefreshToken
			}
			return fmt.Errorf("error loading account: %v", err)
		}
		if user.IsBlocked {
			return common.ErrUserBlocked
		}

		pair, err = s.generateTokenPair(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the session named by the refresh token. Unknown and already
// revoked tokens are not an error, so retried logouts stay idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	hash := cryptox.HashToken(refreshToken)
	if err := s.repomanager.Sessions(s.db).RevokeByHash(ctx, hash, s.now()); err != nil {
		return fmt.Errorf("error revoking session: %v", err)
	}
	return nil
}

// LogoutAll revokes every live session of the user and returns how many.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("error revoking sessions: %v", err)
	}
	return n, nil
}

// CurrentUser validates an access token and loads the account it names.
// Token failures and deleted accounts both come back as ErrInvalidToken.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	subject, err := auth.VerifyToken(accessToken, s.jwtIssuer, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByExternalUID(ctx, subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error loading account: %v", err)
	}
	if user.IsBlocked {
		return nil, common.ErrUserBlocked
	}
	return user, nil
}

// DeleteAccount removes the account row; sessions, purchases and usage
// counters go with it through the schema's cascades.
func (s *AuthService) DeleteAccount(ctx context.Context, userID int64) error {
	if err := s.repomanager.Users(s.db).Delete(ctx, userID); err != nil {
		return fmt.Errorf("error deleting account: %v", err)
	}
	s.logger.Info(ctx, "account deleted", "user_id", userID)
	return nil
}

func (s *AuthService) generateTokenPair(ctx context.Context, db dbx.DBTX, user *models.User) (*TokenPair, error) {
	accessToken, err := auth.GenerateToken(user.ExternalUID, s.jwtIssuer, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	refreshToken, err := cryptox.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, common.ErrorInternal
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: cryptox.HashToken(refreshToken),
		ExpiresAt: s.now().Add(s.refreshTokenValidityDuration),
	}
	if err := s.repomanager.Sessions(db).Create(ctx, session); err != nil {
		return nil, common.ErrorInternal
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
