package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/queue"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
	"github.com/healthaudit/audit-pipeline/pkg/reliability"
)

type fakeAlertRepo struct {
	alerts []*entities.Alert
}

func (f *fakeAlertRepo) Insert(ctx context.Context, alert *entities.Alert) error {
	alert.ID = int64(len(f.alerts) + 1)
	f.alerts = append(f.alerts, alert)
	return nil
}
func (f *fakeAlertRepo) ListActive(ctx context.Context, organizationID *string) ([]*entities.Alert, error) {
	var out []*entities.Alert
	for _, a := range f.alerts {
		if !a.Resolved && samePtr(a.OrganizationID, organizationID) {
			out = append(out, a)
		}
	}
	return out, nil
}
func (f *fakeAlertRepo) ListAllActive(ctx context.Context) ([]*entities.Alert, error) {
	var out []*entities.Alert
	for _, a := range f.alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out, nil
}
func (f *fakeAlertRepo) Resolve(ctx context.Context, id int64, resolvedBy, notes string, at time.Time) error {
	for _, a := range f.alerts {
		if a.ID == id {
			a.Resolve(resolvedBy, notes, at)
		}
	}
	return nil
}
func (f *fakeAlertRepo) Statistics(ctx context.Context, organizationID *string) (*entities.AlertStatistics, error) {
	return &entities.AlertStatistics{}, nil
}
func (f *fakeAlertRepo) CleanupResolved(ctx context.Context, organizationID *string, olderThan time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeAlertRepo) CleanupResolvedAll(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func newTestLogger(t *testing.T) *logger.Logger {
	return &logger.Logger{SugaredLogger: zaptest.NewLogger(t).Sugar()}
}

func newTestStore(t *testing.T, repo *fakeAlertRepo) *Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(repo, rdb, newTestLogger(t))
}

func TestStoreRaiseAndResolve(t *testing.T) {
	repo := &fakeAlertRepo{}
	store := newTestStore(t, repo)
	ctx := context.Background()

	require.NoError(t, store.Raise(ctx, nil, entities.AlertTypeSystem, entities.AlertSeverityMedium,
		"queue_monitor", "backlog growing", "ready queue depth rising", "ingestion_backlog"))

	pending, err := store.Active(ctx, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.Resolve(ctx, pending[0].ID, "ops", "drained manually"))
	pending, err = store.Active(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStoreRaiseDeduplicatesWithinWindow(t *testing.T) {
	repo := &fakeAlertRepo{}
	store := newTestStore(t, repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Raise(ctx, nil, entities.AlertTypeSystem, entities.AlertSeverityMedium,
			"queue_monitor", "backlog growing", "ready queue depth rising", "ingestion_backlog"))
	}

	assert.Len(t, repo.alerts, 1)
}

func TestMonitorRaisesAlertWhenCircuitOpens(t *testing.T) {
	repo := &fakeAlertRepo{}
	store := newTestStore(t, repo)

	registry := reliability.NewRegistry(reliability.BreakerConfig{
		FailureThreshold:        1,
		MinimumRequestThreshold: 1,
		RecoveryTimeout:         time.Minute,
		HalfOpenMaxRequests:     1,
	})
	breaker := registry.Get("downstream:POST")
	_ = breaker.Execute(context.Background(), func(ctx context.Context) error {
		return assert.AnError
	})
	require.Equal(t, entities.CircuitOpen, breaker.State())

	monitor := NewMonitor(store, DefaultMonitorConfig(), nil, registry)
	monitor.check(context.Background())

	assert.Len(t, repo.alerts, 1)
	assert.Equal(t, entities.AlertTypeSystem, repo.alerts[0].Type)

	// A second check with the breaker still open should not raise again.
	monitor.check(context.Background())
	assert.Len(t, repo.alerts, 1)
}

func TestMonitorRaisesAlertOnQueueBacklog(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(rdb, queue.Config{Name: "ingestion"})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, []byte(`{}`))
		require.NoError(t, err)
	}

	repo := &fakeAlertRepo{}
	store := newTestStore(t, repo)
	cfg := DefaultMonitorConfig()
	cfg.QueueBacklogWarning = 2

	registry := reliability.NewRegistry(reliability.BreakerConfig{FailureThreshold: 1, MinimumRequestThreshold: 1})
	monitor := NewMonitor(store, cfg, q, registry)
	monitor.check(ctx)

	assert.NotEmpty(t, repo.alerts)
}
