// Package auth mints and verifies the short-lived signed access tokens that
// carry a verified user identity between requests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sarbazinfo/sarbaz-server/internal/common"
)

// GenerateToken mints an HS256 JWT with claims {sub: subject, iss: issuer,
// exp: now+validity}.
func GenerateToken(subject, issuer string, secret []byte, validity time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyToken checks the token's signature, expiry and issuer and returns the
// subject claim. The signing method is pinned to HS256: a token presenting
// any other algorithm is rejected before signature verification.
//
// All failures map to common.ErrInvalidToken, except expiry which maps to
// common.ErrTokenExpired so callers can log the distinction; neither is ever
// exposed verbatim to clients.
func VerifyToken(tokenString, issuer string, secret []byte) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)

	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %v", common.ErrTokenExpired, err)
		}
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", common.ErrInvalidToken)
	}
	return claims.Subject, nil
}
