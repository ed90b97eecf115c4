// Package cryptox holds the cryptographic primitives of the server: X.509
// chain-of-trust validation for vendor-signed receipts and hashing/entropy
// helpers for opaque tokens.
package cryptox

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	ErrChainTooShort          = errors.New("certificate chain too short")
	ErrCertificateExpired     = errors.New("certificate expired")
	ErrCertificateNotYetValid = errors.New("certificate not yet valid")
	ErrSignatureMismatch      = errors.New("certificate signature mismatch")
	ErrUnsupportedKeyType     = errors.New("unsupported issuer key type")
)

// ValidateChain verifies an ordered certificate chain [leaf, intermediate, ...]
// against a single pinned root and returns the leaf's public key.
//
// Checks performed:
//  1. the chain carries at least a leaf and one issuer;
//  2. every supplied certificate's validity window contains now;
//  3. each certificate is signed by the next one's key, and the last supplied
//     certificate is signed by the pinned root. Issuer keys must be RSA
//     (PKCS#1 v1.5) or ECDSA; any other key algorithm is rejected.
//
// The function is pure: no network access, no revocation lookups. Vendors
// commonly include the root itself as the chain's last element; that works
// here because a self-signed root verifies against the identical pinned key.
func ValidateChain(chain []*x509.Certificate, root *x509.Certificate, now time.Time) (crypto.PublicKey, error) {
	if len(chain) < 2 {
		return nil, fmt.Errorf("%w: got %d certificates", ErrChainTooShort, len(chain))
	}

	for _, cert := range chain {
		if now.Before(cert.NotBefore) {
			return nil, fmt.Errorf("%w: %q valid from %s", ErrCertificateNotYetValid, cert.Subject.CommonName, cert.NotBefore)
		}
		if now.After(cert.NotAfter) {
			return nil, fmt.Errorf("%w: %q expired at %s", ErrCertificateExpired, cert.Subject.CommonName, cert.NotAfter)
		}
	}

	for i := 0; i < len(chain)-1; i++ {
		if err := verifySignedBy(chain[i], chain[i+1]); err != nil {
			return nil, err
		}
	}

	if err := verifySignedBy(chain[len(chain)-1], root); err != nil {
		return nil, err
	}

	return chain[0].PublicKey, nil
}

// ValidateRawChain decodes DER certificates and validates them as a chain.
func ValidateRawChain(der [][]byte, root *x509.Certificate, now time.Time) (crypto.PublicKey, error) {
	chain := make([]*x509.Certificate, 0, len(der))
	for i, d := range der {
		cert, err := x509.ParseCertificate(d)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate %d: %w", i, err)
		}
		chain = append(chain, cert)
	}
	return ValidateChain(chain, root, now)
}

func verifySignedBy(child, issuer *x509.Certificate) error {
	switch issuer.PublicKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedKeyType, issuer.PublicKey)
	}

	if err := issuer.CheckSignature(child.SignatureAlgorithm, child.RawTBSCertificate, child.Signature); err != nil {
		return fmt.Errorf("%w: %q not signed by %q: %v", ErrSignatureMismatch, child.Subject.CommonName, issuer.Subject.CommonName, err)
	}
	return nil
}

// LoadRootCertificate reads a PEM-encoded certificate from path. The server
// refuses to start without its pinned root, so callers treat any error here
// as fatal.
func LoadRootCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading root certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate PEM block in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing root certificate: %w", err)
	}
	return cert, nil
}
