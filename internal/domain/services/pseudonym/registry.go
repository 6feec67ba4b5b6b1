// Package pseudonym implements the three pseudonymization strategies (C2):
// deterministic hashing, random tokenization, and reversible encryption,
// backed by a durable bi-directional mapping store.
package pseudonym

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/repositories"
	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
)

// Registry pseudonymizes and re-identifies subject values. The repository
// never sees plaintext: every mapping's stored OriginalValue is sealed
// with the registry's AES-256-GCM key before Create is called.
type Registry struct {
	repo    repositories.PseudonymRepository
	log     *logger.Logger
	hmacKey []byte
	aead    cipher.AEAD
}

// NewRegistry builds a Registry. hmacKey drives deterministic hashing
// (StrategyHash); encryptionKey must be 32 bytes and drives both the
// reversible StrategyEncrypt pseudonym and the at-rest sealing applied to
// every mapping regardless of strategy.
func NewRegistry(repo repositories.PseudonymRepository, log *logger.Logger, hmacKey, encryptionKey []byte) (*Registry, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindConfigEncryption, "build pseudonym cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindConfigEncryption, "build pseudonym GCM mode", err)
	}
	return &Registry{repo: repo, log: log, hmacKey: hmacKey, aead: aead}, nil
}

// Pseudonymize returns the existing mapping for (domain, original) if one
// exists, creating a new one under strategy otherwise.
func (r *Registry) Pseudonymize(ctx context.Context, domain string, strategy entities.PseudonymStrategy, original string) (*entities.PseudonymMapping, error) {
	originalHash := r.blindIndex(original)

	existing, err := r.repo.FindByOriginal(ctx, domain, originalHash)
	if err != nil {
		return nil, fmt.Errorf("pseudonym: find by original: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	pseudonymValue, err := r.derive(strategy, original)
	if err != nil {
		return nil, err
	}

	sealed, err := r.seal(original)
	if err != nil {
		return nil, fmt.Errorf("pseudonym: seal original value: %w", err)
	}

	mapping := &entities.PseudonymMapping{
		Domain:            domain,
		OriginalValue:     sealed,
		OriginalValueHash: originalHash,
		PseudonymValue:    pseudonymValue,
		Strategy:          strategy,
	}
	if err := r.repo.Create(ctx, mapping); err != nil {
		return nil, fmt.Errorf("pseudonym: create mapping: %w", err)
	}

	r.log.Info("pseudonym mapping created", "domain", domain, "strategy", strategy)
	return mapping, nil
}

// Reidentify recovers the original plaintext for an existing pseudonym,
// for lawful re-identification requests. Works regardless of the
// strategy the pseudonym was created under, since OriginalValue is
// always sealed at rest.
func (r *Registry) Reidentify(ctx context.Context, domain, pseudonymValue string) (string, error) {
	mapping, err := r.repo.FindByPseudonym(ctx, domain, pseudonymValue)
	if err != nil {
		return "", fmt.Errorf("pseudonym: find by pseudonym: %w", err)
	}
	if mapping == nil {
		return "", apierrors.New(apierrors.KindInvalidEvent, "no mapping found for pseudonym")
	}
	return r.unseal(mapping.OriginalValue)
}

// blindIndex computes a deterministic HMAC-SHA256 digest of original,
// used as the lookup key against original_value_hash. OriginalValue
// itself is sealed with a random nonce and can never be compared for
// equality, so every caller that needs to find a mapping by its
// original value must go through this index instead.
func (r *Registry) blindIndex(original string) string {
	mac := hmac.New(sha256.New, r.hmacKey)
	mac.Write([]byte(original))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *Registry) derive(strategy entities.PseudonymStrategy, original string) (string, error) {
	switch strategy {
	case entities.StrategyHash:
		mac := hmac.New(sha256.New, r.hmacKey)
		mac.Write([]byte(original))
		return hex.EncodeToString(mac.Sum(nil)), nil
	case entities.StrategyToken:
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return "", apierrors.Wrap(apierrors.KindConfigEncryption, "generate token", err)
		}
		return hex.EncodeToString(buf), nil
	case entities.StrategyEncrypt:
		return r.seal(original)
	default:
		return "", apierrors.New(apierrors.KindInvalidEvent, fmt.Sprintf("unknown pseudonym strategy %q", strategy))
	}
}

func (r *Registry) seal(plaintext string) (string, error) {
	nonce := make([]byte, r.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", apierrors.Wrap(apierrors.KindConfigEncryption, "generate nonce", err)
	}
	ciphertext := r.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (r *Registry) unseal(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", apierrors.Wrap(apierrors.KindConfigEncryption, "decode sealed value", err)
	}
	nonceSize := r.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", apierrors.New(apierrors.KindConfigEncryption, "sealed value too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := r.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", apierrors.Wrap(apierrors.KindConfigEncryption, "decrypt sealed value", err)
	}
	return string(plaintext), nil
}
