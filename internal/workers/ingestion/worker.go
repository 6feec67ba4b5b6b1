// Package ingestion runs the worker pool that drains the reliable queue
// and writes each job into the sealed audit log.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/audit"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/queue"
	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
	"github.com/healthaudit/audit-pipeline/pkg/metrics"
)

// Config controls the worker pool.
type Config struct {
	WorkerCount     int
	PollInterval    time.Duration
	RecoveryInterval time.Duration
}

// DefaultConfig returns sane defaults for the worker pool.
func DefaultConfig() Config {
	return Config{
		WorkerCount:      4,
		PollInterval:     250 * time.Millisecond,
		RecoveryInterval: 30 * time.Second,
	}
}

// Pool drains the ingestion queue with WorkerCount concurrent workers,
// sealing every claimed job into the audit log.
type Pool struct {
	cfg     Config
	queue   *queue.Queue
	audit   *audit.Service
	log     *logger.Logger

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewPool builds a Pool.
func NewPool(cfg Config, q *queue.Queue, auditSvc *audit.Service, log *logger.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:            cfg,
		queue:          q,
		audit:          auditSvc,
		log:            log,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Start launches WorkerCount claim loops plus one visibility-recovery
// loop. It returns immediately; call Shutdown to stop the pool.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.claimLoop(ctx, i)
	}
	p.wg.Add(1)
	go p.recoveryLoop(ctx)
}

// Shutdown signals every worker to stop and waits up to timeout for them
// to drain in-flight work.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.shutdownCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("ingestion: shutdown timeout exceeded")
	}
}

func (p *Pool) claimLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdownCtx.Done():
			return
		case <-ticker.C:
			p.claimAndProcess(ctx, workerID)
		}
	}
}

func (p *Pool) claimAndProcess(ctx context.Context, workerID int) {
	job, err := p.queue.Claim(ctx)
	if err != nil {
		p.log.Error("failed to claim job", "worker", workerID, "error", err)
		return
	}
	if job == nil {
		return
	}

	if err := p.process(ctx, job); err != nil {
		p.log.Warn("job processing failed, nacking for retry", "worker", workerID, "job_id", job.ID, "error", err)
		if nackErr := p.queue.Nack(ctx, job.ID, err); nackErr != nil {
			p.log.Error("failed to nack job", "worker", workerID, "job_id", job.ID, "error", nackErr)
		}
		metrics.EventsIngestedTotal.WithLabelValues("rejected").Inc()
		return
	}

	if err := p.queue.Ack(ctx, job.ID); err != nil {
		p.log.Error("failed to ack job", "worker", workerID, "job_id", job.ID, "error", err)
	}
	metrics.EventsIngestedTotal.WithLabelValues("ok").Inc()
}

func (p *Pool) process(ctx context.Context, job *queue.Job) error {
	var event entities.AuditEvent
	if err := json.Unmarshal(job.Payload, &event); err != nil {
		// A malformed payload will never succeed on retry. It is tagged
		// KindInvalidEvent, but claimAndProcess nacks it like any other
		// failure, so the queue re-queues it until its attempt limit moves
		// it to the dead-letter set.
		return apierrors.Wrap(apierrors.KindInvalidEvent, "unmarshal job payload", err)
	}

	start := time.Now()
	err := p.audit.Log(ctx, &event)
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	latency := elapsed.Milliseconds()
	event.ProcessingLatencyMs = &latency
	metrics.IngestionLatencySeconds.Observe(elapsed.Seconds())
	return nil
}

func (p *Pool) recoveryLoop(ctx context.Context) {
	defer p.wg.Done()

	interval := p.cfg.RecoveryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdownCtx.Done():
			return
		case <-ticker.C:
			recovered, err := p.queue.RecoverExpired(ctx)
			if err != nil {
				p.log.Error("failed to recover expired jobs", "error", err)
				continue
			}
			if recovered > 0 {
				p.log.Warn("recovered expired in-flight jobs", "count", recovered)
			}
			p.reportQueueDepth(ctx)
		}
	}
}

func (p *Pool) reportQueueDepth(ctx context.Context) {
	if ready, err := p.queue.ReadyCount(ctx); err == nil {
		metrics.QueueDepthGauge.WithLabelValues("ready").Set(float64(ready))
	}
	if dlq, err := p.queue.DeadLetterCount(ctx); err == nil {
		metrics.QueueDepthGauge.WithLabelValues("dead_letter").Set(float64(dlq))
	}
}
