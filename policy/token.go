package policy

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig defines a public type used by ztgate APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	// SigningMethod is "ed25519" (default) or "hs256".
	SigningMethod string
	VerifyKey     []byte
	Issuer        string
}

// TokenVerifier checks attestation evidence tokens minted by a device
// attestation service and exposes their claims to the scoring chain.
type TokenVerifier struct {
	cfg TokenConfig
	key any
}

// NewTokenVerifier describes the newtokenverifier operation and its observable behavior.
//
// NewTokenVerifier may return an error when input validation, dependency calls, or security checks fail.
// NewTokenVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewTokenVerifier(cfg TokenConfig) (*TokenVerifier, error) {
	if len(cfg.VerifyKey) == 0 {
		return nil, errors.New("attestation token verify key required")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = "ed25519"
	}

	v := &TokenVerifier{cfg: cfg}
	switch cfg.SigningMethod {
	case "ed25519":
		if len(cfg.VerifyKey) != ed25519.PublicKeySize {
			return nil, errors.New("ed25519 verify key must be 32 bytes")
		}
		v.key = ed25519.PublicKey(cfg.VerifyKey)
	case "hs256":
		v.key = cfg.VerifyKey
	default:
		return nil, fmt.Errorf("unsupported attestation token method %q", cfg.SigningMethod)
	}
	return v, nil
}

// Verify parses and verifies evidence and returns its claims. Claims from an
// invalid token are never returned.
func (v *TokenVerifier) Verify(tokenString string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	opts := []jwt.ParserOption{}
	switch v.cfg.SigningMethod {
	case "ed25519":
		opts = append(opts, jwt.WithValidMethods([]string{"EdDSA"}))
	case "hs256":
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("attestation token rejected: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("attestation token rejected")
	}

	out := make(map[string]any, len(claims))
	for k, val := range claims {
		out[k] = val
	}
	return out, nil
}
