// Package jws decodes compact JSON Web Signature structures whose header
// carries an x5c certificate chain, the format app-store vendors use for
// signed purchase receipts. The chain is validated against a pinned root
// before the payload signature is trusted.
package jws

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sarbazinfo/sarbaz-server/internal/cryptox"
)

var (
	ErrMalformedStructure    = errors.New("malformed signed structure")
	ErrAlgorithmNotAllowed   = errors.New("signing algorithm not allowed")
	ErrHeaderMissingChain    = errors.New("header missing certificate chain")
	ErrChainValidationFailed = errors.New("certificate chain validation failed")
	ErrSignatureInvalid      = errors.New("signature invalid")
)

// Decoder verifies compact JWS structures against a pinned root certificate
// and a fixed allowlist of signing algorithms.
type Decoder struct {
	root *x509.Certificate
	algs []string
	now  func() time.Time
}

// NewDecoder returns a Decoder trusting only chains ending at root and only
// the given algorithms (e.g. []string{"ES256"}).
func NewDecoder(root *x509.Certificate, allowedAlgs []string) *Decoder {
	return &Decoder{root: root, algs: allowedAlgs, now: time.Now}
}

type jwsHeader struct {
	Alg string   `json:"alg"`
	X5C []string `json:"x5c"`
}

// Decode verifies token and returns its payload claims.
//
// The header is decoded without being trusted: the declared algorithm must be
// on the allowlist ("none" and anything unexpected is rejected outright) and
// the x5c chain must be present. The chain is validated against the pinned
// root, then the token signature is re-verified with the validated leaf key.
func (d *Decoder) Decode(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 parts, got %d", ErrMalformedStructure, len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: decoding header: %v", ErrMalformedStructure, err)
	}
	if _, err := base64.RawURLEncoding.DecodeString(parts[1]); err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", ErrMalformedStructure, err)
	}

	var h jwsHeader
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return nil, fmt.Errorf("%w: parsing header: %v", ErrMalformedStructure, err)
	}

	if !slices.Contains(d.algs, h.Alg) {
		return nil, fmt.Errorf("%w: %q", ErrAlgorithmNotAllowed, h.Alg)
	}
	if len(h.X5C) == 0 {
		return nil, ErrHeaderMissingChain
	}

	der := make([][]byte, 0, len(h.X5C))
	for i, c := range h.X5C {
		b, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			return nil, fmt.Errorf("%w: certificate %d is not valid base64: %v", ErrChainValidationFailed, i, err)
		}
		der = append(der, b)
	}

	leafKey, err := cryptox.ValidateRawChain(der, d.root, d.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChainValidationFailed, err)
	}

	parser := jwt.NewParser(jwt.WithValidMethods(d.algs))
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return leafKey, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	return claims, nil
}
