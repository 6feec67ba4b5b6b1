package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, Config{Name: "ingestion", Visibility: 50 * time.Millisecond})
}

func TestEnqueueClaimAck(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{"action":"auth.login"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, id, job.ID)

	require.NoError(t, q.Ack(ctx, job.ID))

	n, err := q.ReadyCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestClaimReturnsNilWhenEmpty(t *testing.T) {
	q := newTestQueue(t)
	job, err := q.Claim(context.Background())
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestNackRequeuesUntilMaxAttempts(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{}`))
	require.NoError(t, err)

	for i := 0; i < defaultMaxAttempts-1; i++ {
		job, err := q.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		require.NoError(t, q.Nack(ctx, job.ID, errors.New("downstream unavailable")))
	}

	n, err := q.ReadyCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, q.Nack(ctx, job.ID, errors.New("final failure")))

	n, err = q.ReadyCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	dlq, err := q.DeadLetterCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), dlq)
	_ = id
}

func TestRecoverExpiredRequeuesStaleInFlightJobs(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte(`{}`))
	require.NoError(t, err)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	time.Sleep(100 * time.Millisecond)

	recovered, err := q.RecoverExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	n, err := q.ReadyCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
