package entities

import "time"

// PseudonymStrategy is the reversibility/determinism class of a mapping.
type PseudonymStrategy string

const (
	// StrategyHash produces a deterministic, non-reversible pseudonym
	// (HMAC over the original value); the same input always maps to the
	// same pseudonym, but the mapping cannot be inverted without the
	// stored plaintext.
	StrategyHash PseudonymStrategy = "hash"
	// StrategyToken produces a random, non-deterministic pseudonym with
	// no relation to the original value.
	StrategyToken PseudonymStrategy = "token"
	// StrategyEncrypt produces a reversible pseudonym via symmetric
	// encryption of the original value.
	StrategyEncrypt PseudonymStrategy = "encrypt"
)

// PseudonymMapping is a durable, bi-directional mapping between a subject's
// real identifier and its pseudonym, scoped to a domain so the same subject
// can carry distinct pseudonyms in different contexts (e.g. "principalId"
// vs "email").
type PseudonymMapping struct {
	ID            int64             `json:"id" db:"id"`
	Domain        string            `json:"domain" db:"domain"`
	OriginalValue string            `json:"-" db:"original_value_encrypted"`
	// OriginalValueHash is a deterministic HMAC-SHA256 digest of the
	// original value, hex-encoded. Since OriginalValue is sealed with a
	// random nonce (two identical plaintexts never produce the same
	// ciphertext), lookups by original value cannot use the encrypted
	// column directly; they use this blind index instead.
	OriginalValueHash string           `json:"-" db:"original_value_hash"`
	PseudonymValue string           `json:"pseudonymValue" db:"pseudonym_value"`
	Strategy      PseudonymStrategy `json:"strategy" db:"strategy"`
	CreatedAt     time.Time         `json:"createdAt" db:"created_at"`
}
