package identity

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

const googleProvider = "google.com"

// validateIDToken is a seam for testing idtoken.Validate.
var validateIDToken = func(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {
	return idtoken.Validate(ctx, idToken, audience)
}

// GoogleVerifier validates Google-issued ID tokens (signature, expiry and
// audience) using Google's public JWKS.
type GoogleVerifier struct {
	clientID string
}

func NewGoogleVerifier(clientID string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is not configured")
	}
	return &GoogleVerifier{clientID: clientID}, nil
}

func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Claims, error) {
	payload, err := validateIDToken(ctx, idToken, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid identity token: %w", err)
	}

	claims := &Claims{
		UID:      payload.Subject,
		Provider: googleProvider,
	}
	if email, ok := payload.Claims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := payload.Claims["name"].(string); ok {
		claims.Name = name
	}
	if picture, ok := payload.Claims["picture"].(string); ok {
		claims.Picture = picture
	}
	return claims, nil
}
