// Package queue implements a durable, at-least-once job queue over Redis,
// modeled on the BullMQ pattern: a sorted set of ready job ids scored by
// enqueue (or re-queue) time, a sorted set of in-flight job ids scored by
// their visibility deadline, a sorted set of dead-lettered job ids, and a
// string key per job holding its JSON-encoded payload and retry metadata.
// A nacked job is re-queued as ready at once; there are no delayed retries.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
)

const (
	readyKeySuffix     = ":ready"
	inflightKeySuffix  = ":inflight"
	dlqKeySuffix       = ":dlq"
	jobKeyPrefix       = ":job:"
	defaultVisibility  = 30 * time.Second
	defaultMaxAttempts = 5
)

// Job is one unit of work enqueued for ingestion processing.
type Job struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	LastError   string          `json:"lastError,omitempty"`
}

// Queue is a named reliable queue backed by a Redis keyspace.
type Queue struct {
	rdb        *redis.Client
	name       string
	visibility time.Duration
}

// Config controls queue behavior.
type Config struct {
	Name       string
	Visibility time.Duration
}

// New builds a Queue named cfg.Name over rdb.
func New(rdb *redis.Client, cfg Config) *Queue {
	visibility := cfg.Visibility
	if visibility <= 0 {
		visibility = defaultVisibility
	}
	return &Queue{rdb: rdb, name: cfg.Name, visibility: visibility}
}

func (q *Queue) readyKey() string    { return q.name + readyKeySuffix }
func (q *Queue) inflightKey() string { return q.name + inflightKeySuffix }
func (q *Queue) dlqKey() string      { return q.name + dlqKeySuffix }
func (q *Queue) jobKey(id string) string { return q.name + jobKeyPrefix + id }

// Enqueue adds a new job with the given payload, ready for immediate
// claim.
func (q *Queue) Enqueue(ctx context.Context, payload []byte) (string, error) {
	id := uuid.NewString()
	job := Job{ID: id, Payload: payload, MaxAttempts: defaultMaxAttempts, EnqueuedAt: time.Now().UTC()}

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("queue: marshal job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, q.jobKey(id), body, 0)
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(job.EnqueuedAt.UnixNano()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", apierrors.Wrap(apierrors.KindTransient, "enqueue job", err)
	}
	return id, nil
}

// Claim atomically moves the oldest ready job into the in-flight set with
// a visibility deadline, returning nil if no job is ready. Callers must
// call Ack or Nack before the visibility timeout elapses or the job
// becomes reclaimable by RecoverExpired.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	deadline := time.Now().Add(q.visibility)
	id, err := redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, 0)
if #ids == 0 then return false end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('ZADD', KEYS[2], ARGV[1], ids[1])
return ids[1]`).Run(ctx, q.rdb, []string{q.readyKey(), q.inflightKey()}, deadline.UnixNano()).Text()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindTransient, "claim job", err)
	}

	return q.loadJob(ctx, id)
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	body, err := q.rdb.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindTransient, "load job", err)
	}
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job: %w", err)
	}
	return &job, nil
}

// Ack marks a job complete, removing it from in-flight and deleting its
// payload.
func (q *Queue) Ack(ctx context.Context, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), id)
	pipe.Del(ctx, q.jobKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindTransient, "ack job", err)
	}
	return nil
}

// Nack reports a job's processing failure. If the job has attempts
// remaining it is re-queued as ready; otherwise it is moved to the dead
// letter queue.
func (q *Queue) Nack(ctx context.Context, id string, cause error) error {
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return err
	}
	job.Attempts++
	if cause != nil {
		job.LastError = cause.Error()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), id)
	pipe.Set(ctx, q.jobKey(id), body, 0)
	if job.Attempts >= job.MaxAttempts {
		pipe.ZAdd(ctx, q.dlqKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: id})
	} else {
		pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindTransient, "nack job", err)
	}
	return nil
}

// RecoverExpired re-queues any in-flight job whose visibility deadline
// has passed, guarding against a worker crashing mid-processing. It
// should be run periodically by the worker pool.
func (q *Queue) RecoverExpired(ctx context.Context) (int, error) {
	now := float64(time.Now().UnixNano())
	expired, err := q.rdb.ZRangeByScore(ctx, q.inflightKey(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindTransient, "scan expired jobs", err)
	}
	for _, id := range expired {
		if err := q.Nack(ctx, id, fmt.Errorf("visibility timeout exceeded")); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// DeadLetterCount returns the number of jobs currently parked in the dead
// letter queue, used by the alert monitor to detect a stuck backlog.
func (q *Queue) DeadLetterCount(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, q.dlqKey()).Result()
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindTransient, "count dead letters", err)
	}
	return n, nil
}

// ReadyCount returns the number of jobs currently waiting to be claimed,
// used to detect queue backlog.
func (q *Queue) ReadyCount(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindTransient, "count ready jobs", err)
	}
	return n, nil
}
