package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
)

func TestRetryConfigDelayRespectsCap(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	for attempt := 1; attempt <= 10; attempt++ {
		d := cfg.Delay(attempt)
		assert.LessOrEqual(t, d, 50*time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesThenExhausts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, apierrors.IsRetryExhausted(err))
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return false },
	}
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("fatal")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, apierrors.IsRetryExhausted(err))
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	var transitions []entities.CircuitState
	reg := NewRegistry(BreakerConfig{
		FailureThreshold:        2,
		MinimumRequestThreshold: 2,
		RecoveryTimeout:         50 * time.Millisecond,
		HalfOpenMaxRequests:     1,
		OnStateChange: func(key string, from, to entities.CircuitState) {
			transitions = append(transitions, to)
		},
	})
	cb := reg.Get("webhook:POST")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("downstream failure")
		})
	}

	assert.Equal(t, entities.CircuitOpen, cb.State())
	assert.Contains(t, transitions, entities.CircuitOpen)
}

func TestRegistrySnapshotReportsAllKnownBreakers(t *testing.T) {
	reg := NewRegistry(BreakerConfig{FailureThreshold: 5, MinimumRequestThreshold: 5, RecoveryTimeout: time.Second})
	reg.Get("a:GET")
	reg.Get("b:POST")

	stats := reg.Snapshot()
	assert.Len(t, stats, 2)
}
