// Package billing verifies vendor purchase proofs and normalizes them into a
// single receipt shape, so the entitlement logic never branches on which
// store a purchase came from.
package billing

import (
	"context"
	"errors"
	"time"
)

// Status classifies a verification attempt.
type Status int

const (
	// StatusVerified means the proof is authentic and Receipt is populated.
	// The receipt may still be expired (Entitled=false); it is recorded in
	// the ledger either way.
	StatusVerified Status = iota
	// StatusDenied means the proof is invalid, mismatched or rejected by
	// the vendor. Nothing is recorded.
	StatusDenied
	// StatusUpstreamError means the vendor could not be consulted. The
	// caller fails closed and the background sync retries later.
	StatusUpstreamError
)

// Proof carries client-supplied purchase evidence. Token is the vendor
// purchase token (Google) or a transaction id hint (Apple); Payload is the
// signed receipt structure for vendors that use one.
type Proof struct {
	Token     string
	ProductID string
	Payload   string
}

// Receipt is the vendor-independent result of a successful verification.
type Receipt struct {
	// Token is the canonical ledger key: the purchase token for Google, the
	// original transaction id for Apple.
	Token       string
	ProductID   string
	PurchasedAt time.Time // zero when the vendor does not report it
	ExpiresAt   time.Time
	Entitled    bool
}

// Outcome is the tagged result of a verification: exactly one Status, with
// Reason carrying the internal cause for denied/upstream outcomes. Reason is
// for logs and tests only, never for client responses.
type Outcome struct {
	Status  Status
	Receipt *Receipt
	Reason  error
}

// Verifier is the capability both vendor clients implement.
type Verifier interface {
	Verify(ctx context.Context, proof Proof) Outcome
}

var (
	ErrVendorUnreachable       = errors.New("vendor unreachable")
	ErrVendorRejected          = errors.New("vendor rejected purchase token")
	ErrMalformedVendorResponse = errors.New("malformed vendor response")

	ErrDecodeFailed          = errors.New("receipt decode failed")
	ErrAppIdentifierMismatch = errors.New("app identifier mismatch")
	ErrProductMismatch       = errors.New("product mismatch")
	ErrNoExpiry              = errors.New("receipt has no expiry")
)

func verified(r *Receipt) Outcome {
	return Outcome{Status: StatusVerified, Receipt: r}
}

func denied(reason error) Outcome {
	return Outcome{Status: StatusDenied, Reason: reason}
}

func upstreamError(reason error) Outcome {
	return Outcome{Status: StatusUpstreamError, Reason: reason}
}
