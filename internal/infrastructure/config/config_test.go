package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, `
environment: development
log_level: info
server:
  addr: ":8080"
database:
  dsn: "postgres://localhost/audit"
redis:
  addr: "localhost:6379"
pseudonym:
  hmac_key_hex: "00112233"
  encryption_key_hex: "`+hex64()+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Worker.Count)
}

func hex64() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

func TestLoadMissingDSNFails(t *testing.T) {
	path := writeConfigFile(t, `
environment: development
log_level: info
pseudonym:
  hmac_key_hex: "00112233"
  encryption_key_hex: "`+hex64()+`"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestProductionRequiresComplianceRecipients(t *testing.T) {
	path := writeConfigFile(t, `
environment: production
log_level: info
database:
  dsn: "postgres://localhost/audit"
redis:
  addr: "localhost:6379"
pseudonym:
  hmac_key_hex: "00112233"
  encryption_key_hex: "`+hex64()+`"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSecretBoxRoundTrip(t *testing.T) {
	box := NewSecretBox("correct-horse-battery-staple")
	sealed, err := box.Seal("super-secret-dsn-password")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "super-secret-dsn-password")

	plaintext, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-dsn-password", plaintext)
}

func TestSecretBoxWrongPassphraseFails(t *testing.T) {
	box := NewSecretBox("correct-horse-battery-staple")
	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	wrongBox := NewSecretBox("wrong-passphrase")
	_, err = wrongBox.Open(sealed)
	assert.Error(t, err)
}
