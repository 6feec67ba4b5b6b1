package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/queue"
	"github.com/healthaudit/audit-pipeline/pkg/reliability"
)

// MonitorConfig thresholds the conditions Monitor watches for.
type MonitorConfig struct {
	Interval            time.Duration
	QueueBacklogWarning int64
}

// DefaultMonitorConfig returns sane defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{Interval: 15 * time.Second, QueueBacklogWarning: 1000}
}

// Monitor watches circuit breaker state and queue depth, raising alerts
// when either crosses into an unhealthy condition.
type Monitor struct {
	store   *Store
	cfg     MonitorConfig
	queue   *queue.Queue
	circuit *reliability.Registry

	openBreakers map[string]bool
}

// NewMonitor builds a Monitor.
func NewMonitor(store *Store, cfg MonitorConfig, q *queue.Queue, circuit *reliability.Registry) *Monitor {
	return &Monitor{store: store, cfg: cfg, queue: q, circuit: circuit, openBreakers: map[string]bool{}}
}

// Run blocks, polling every cfg.Interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	m.checkCircuitBreakers(ctx)
	m.checkQueueBacklog(ctx)
}

func (m *Monitor) checkCircuitBreakers(ctx context.Context) {
	for _, stats := range m.circuit.Snapshot() {
		isOpen := stats.State == entities.CircuitOpen
		wasOpen := m.openBreakers[stats.Key]

		if isOpen && !wasOpen {
			_ = m.store.Raise(ctx, nil, entities.AlertTypeSystem, entities.AlertSeverityHigh,
				"circuit_breaker", fmt.Sprintf("circuit breaker %q opened", stats.Key),
				fmt.Sprintf("circuit breaker %q opened after %d failures out of %d requests", stats.Key, stats.Failures, stats.Requests),
				stats.Key)
		}
		m.openBreakers[stats.Key] = isOpen
	}
}

func (m *Monitor) checkQueueBacklog(ctx context.Context) {
	if m.queue == nil {
		return
	}
	ready, err := m.queue.ReadyCount(ctx)
	if err == nil && ready >= m.cfg.QueueBacklogWarning {
		_ = m.store.Raise(ctx, nil, entities.AlertTypeSystem, entities.AlertSeverityMedium,
			"queue_monitor", "ingestion queue backlog",
			fmt.Sprintf("ingestion queue backlog at %d ready jobs", ready), "ingestion_backlog")
	}

	dead, err := m.queue.DeadLetterCount(ctx)
	if err == nil && dead > 0 {
		_ = m.store.Raise(ctx, nil, entities.AlertTypeSystem, entities.AlertSeverityCritical,
			"queue_monitor", "jobs stuck in dead letter queue",
			fmt.Sprintf("%d jobs stuck in the dead letter queue", dead), "ingestion_dead_letter")
	}
}
