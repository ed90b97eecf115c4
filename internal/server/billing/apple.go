package billing

import (
	"context"
	"fmt"
	"time"
)

// AppleAllowedAlgorithms lists the signing algorithms Apple emits for signed
// transaction payloads.
var AppleAllowedAlgorithms = []string{"ES256"}

// PayloadDecoder turns a signed receipt payload into its claims after
// authenticating it. Satisfied by jws.Decoder.
type PayloadDecoder interface {
	Decode(token string) (map[string]any, error)
}

// AppleClient verifies client-supplied signed transaction payloads. There is
// no network call: authenticity comes from the certificate chain embedded in
// the payload, which the decoder validates against the pinned vendor root.
type AppleClient struct {
	bundleID  string
	productID string
	decoder   PayloadDecoder
	now       func() time.Time
}

func NewAppleClient(decoder PayloadDecoder, bundleID, productID string) *AppleClient {
	return &AppleClient{
		bundleID:  bundleID,
		productID: productID,
		decoder:   decoder,
		now:       time.Now,
	}
}

// Verify decodes proof.Payload and checks it against the configured bundle
// and product ids. Every mismatch denies with the same external outcome, so
// a probing client cannot tell which check failed.
func (c *AppleClient) Verify(ctx context.Context, proof Proof) Outcome {
	claims, err := c.decoder.Decode(proof.Payload)
	if err != nil {
		return denied(fmt.Errorf("%w: %v", ErrDecodeFailed, err))
	}

	bundleID, _ := claims["bundleId"].(string)
	if bundleID != c.bundleID {
		return denied(fmt.Errorf("%w: %q", ErrAppIdentifierMismatch, bundleID))
	}

	productID, _ := claims["productId"].(string)
	if productID != c.productID {
		return denied(fmt.Errorf("%w: %q", ErrProductMismatch, productID))
	}
	if proof.ProductID != "" && proof.ProductID != productID {
		return denied(fmt.Errorf("%w: requested %q", ErrProductMismatch, proof.ProductID))
	}

	expiresMs, ok := claims["expiresDate"].(float64)
	if !ok || expiresMs <= 0 {
		// A payload without an expiry carries no entitlement window.
		return denied(ErrNoExpiry)
	}
	expiry := time.UnixMilli(int64(expiresMs))

	r := &Receipt{
		Token:     appleLedgerToken(claims, proof),
		ProductID: productID,
		ExpiresAt: expiry,
		Entitled:  expiry.After(c.now()),
	}
	if purchasedMs, ok := claims["purchaseDate"].(float64); ok && purchasedMs > 0 {
		r.PurchasedAt = time.UnixMilli(int64(purchasedMs))
	}
	return verified(r)
}

// appleLedgerToken picks the ledger key for an Apple purchase. The original
// transaction id is stable across renewals of the same subscription; the
// fallbacks cover payloads that omit it.
func appleLedgerToken(claims map[string]any, proof Proof) string {
	if v, ok := claims["originalTransactionId"].(string); ok && v != "" {
		return v
	}
	if v, ok := claims["transactionId"].(string); ok && v != "" {
		return v
	}
	return proof.Token
}
