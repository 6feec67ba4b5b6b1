package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"

	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
)

const (
	pbkdf2Iterations = 100_000
	pbkdf2KeyLength  = 32
	saltLength       = 16
)

// SecretBox seals and opens values that must sit encrypted-at-rest in a
// config file (e.g. a committed DSN with placeholder credentials swapped
// for the real ones by an operator). The AES-256-GCM key is derived from
// a passphrase via PBKDF2-HMAC-SHA256 rather than used directly, so the
// passphrase itself never becomes the key.
type SecretBox struct {
	passphrase string
}

// NewSecretBox builds a SecretBox over passphrase, which should come from
// an out-of-band secret (env var, mounted secret file), never from the
// config file it protects.
func NewSecretBox(passphrase string) *SecretBox {
	return &SecretBox{passphrase: passphrase}
}

// Seal encrypts plaintext, returning a base64 string carrying the salt,
// nonce, and ciphertext so Open needs nothing but the passphrase to
// reverse it.
func (s *SecretBox) Seal(plaintext string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", apierrors.Wrap(apierrors.KindConfigEncryption, "generate salt", err)
	}
	key := pbkdf2.Key([]byte(s.passphrase), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", apierrors.Wrap(apierrors.KindConfigEncryption, "generate nonce", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *SecretBox) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", apierrors.Wrap(apierrors.KindConfigEncryption, "decode sealed secret", err)
	}
	if len(raw) < saltLength {
		return "", apierrors.New(apierrors.KindConfigEncryption, "sealed secret too short")
	}
	salt, rest := raw[:saltLength], raw[saltLength:]
	key := pbkdf2.Key([]byte(s.passphrase), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(rest) < gcm.NonceSize() {
		return "", apierrors.New(apierrors.KindConfigEncryption, "sealed secret missing nonce")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", apierrors.Wrap(apierrors.KindConfigEncryption, "decrypt sealed secret", err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindConfigEncryption, "build cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindConfigEncryption, "build GCM mode", err)
	}
	return gcm, nil
}
