package canonical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesKeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": map[string]interface{}{"z": 1, "y": 2}}
	b := map[string]interface{}{"c": map[string]interface{}{"y": 2, "z": 1}, "a": 2, "b": 1}

	ab, err := Bytes(a)
	require.NoError(t, err)
	bb, err := Bytes(b)
	require.NoError(t, err)

	assert.Equal(t, string(ab), string(bb))
	assert.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`, string(ab))
}

func TestBytesPreservesArrayOrder(t *testing.T) {
	v := map[string]interface{}{"items": []interface{}{3, 1, 2}}
	b, err := Bytes(v)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[3,1,2]}`, string(b))
}

func TestBytesPreservesNull(t *testing.T) {
	v := map[string]interface{}{"a": nil, "b": "x"}
	b, err := Bytes(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":null,"b":"x"}`, string(b))
}

func TestHashIsDeterministic(t *testing.T) {
	v := map[string]interface{}{"x": 1, "y": "hello"}
	h1, err := Hash(v)
	require.NoError(t, err)
	h2, err := Hash(v)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestSignerSignAndVerify(t *testing.T) {
	signer := NewSigner([]byte("test-secret-key-material"))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	token, err := signer.Sign(42, "deadbeef", now)
	require.NoError(t, err)

	claims, err := signer.Verify(token, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.EventID)
	assert.Equal(t, "HS256", claims.Alg)
}

func TestSignerVerifyRejectsHashMismatch(t *testing.T) {
	signer := NewSigner([]byte("test-secret-key-material"))
	token, err := signer.Sign(1, "aaaa", time.Now())
	require.NoError(t, err)

	_, err = signer.Verify(token, "bbbb")
	assert.Error(t, err)
}

func TestSignerVerifyRejectsWrongKey(t *testing.T) {
	signer := NewSigner([]byte("key-one"))
	other := NewSigner([]byte("key-two"))
	token, err := signer.Sign(1, "aaaa", time.Now())
	require.NoError(t, err)

	_, err = other.Verify(token, "aaaa")
	assert.Error(t, err)
}
