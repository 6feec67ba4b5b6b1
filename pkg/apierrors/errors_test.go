package apierrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindTransient, "failed to reach redis", cause)

	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "failed to reach redis")
}

func TestKindOf(t *testing.T) {
	err := New(KindCircuitOpen, "breaker open for webhook:POST")

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindCircuitOpen, kind)
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, IsTransient(err))
}

func TestKindOfPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(New(KindInvalidEvent, "bad payload")))
	assert.Equal(t, 2, ExitCode(New(KindConfigValidation, "missing field")))
	assert.Equal(t, 1, ExitCode(New(KindTransient, "timeout")))
	assert.Equal(t, 1, ExitCode(errors.New("unknown")))
}
