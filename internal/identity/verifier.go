// Package identity abstracts the third-party identity provider that turns a
// client-supplied identity token into a verified user id and profile claims.
// The rest of the server depends only on the Verifier interface.
package identity

import "context"

// Claims are the verified profile attributes extracted from an identity token.
// UID is the provider's immutable unique id and is the only mandatory field.
type Claims struct {
	UID      string
	Provider string
	Email    string
	Name     string
	Picture  string
}

// Verifier validates an identity token issued by an external provider.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Claims, error)
}
