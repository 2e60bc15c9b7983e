// Package auth implements the protocol pieces of the authorization-code
// PKCE flow: verifier/challenge generation, the ephemeral session
// registry, authorization URL construction, and the token exchange.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const ChallengeMethodS256 = "S256"

const (
	verifierEntropyBytes = 32
	stateEntropyBytes    = 16
)

type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewPKCEPair generates a URL-safe verifier from 32 bytes of entropy and
// derives its S256 challenge.
func NewPKCEPair() (PKCEPair, error) {
	raw := make([]byte, verifierEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return PKCEPair{}, err
	}

	verifier := base64.RawURLEncoding.EncodeToString(raw)

	return PKCEPair{Verifier: verifier, Challenge: Challenge(verifier)}, nil
}

// Challenge returns the URL-safe base64 SHA-256 digest of a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewState generates the opaque token round-tripped through the
// authorization redirect. It is unrelated to the verifier.
func NewState() (string, error) {
	raw := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}
