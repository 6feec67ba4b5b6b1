package canonical

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EventClaims is the JWT claim set attesting to a single event's hash. It
// is additive to the hash chain, not an identity token: signing is only
// ever enabled to let a downstream verifier confirm the hash was produced
// by a holder of the shared signing key.
type EventClaims struct {
	Hash    string `json:"hash"`
	EventID int64  `json:"eventId"`
	Alg     string `json:"alg"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256-signed attestations over event hashes.
type Signer struct {
	key []byte
}

// NewSigner builds a Signer from a shared secret. The secret is typically
// sourced from config's encrypted-at-rest secure storage.
func NewSigner(key []byte) *Signer {
	return &Signer{key: key}
}

// Sign produces a compact JWS attesting that eventID's canonical hash is
// hash, issued at now.
func (s *Signer) Sign(eventID int64, hash string, now time.Time) (string, error) {
	claims := EventClaims{
		Hash:    hash,
		EventID: eventID,
		Alg:     "HS256",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("canonical: sign event attestation: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a compact JWS produced by Sign, returning
// the claims if the signature and hash match.
func (s *Signer) Verify(token, expectedHash string) (*EventClaims, error) {
	claims := &EventClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("canonical: unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("canonical: verify event attestation: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("canonical: event attestation token invalid")
	}
	if claims.Hash != expectedHash {
		return nil, fmt.Errorf("canonical: event attestation hash mismatch")
	}
	return claims, nil
}
