// Package reliability provides the retry, circuit-breaking, and HTTP
// transport building blocks used by the notification and reliability
// webhook client.
package reliability

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
)

// State mirrors gobreaker's three-state model through the domain's own
// CircuitState type so callers never import gobreaker directly.
type State = entities.CircuitState

// BreakerConfig controls one endpoint:method breaker instance.
type BreakerConfig struct {
	FailureThreshold        uint32
	MinimumRequestThreshold uint32
	RecoveryTimeout         time.Duration
	HalfOpenMaxRequests     uint32
	OnStateChange           func(key string, from, to State)
}

// CircuitBreaker wraps gobreaker.CircuitBreaker for a single key.
type CircuitBreaker struct {
	key string
	cb  *gobreaker.CircuitBreaker
}

func newBreaker(key string, cfg BreakerConfig) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        key,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumRequestThreshold {
				return false
			}
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, toDomainState(from), toDomainState(to))
		}
	}
	return &CircuitBreaker{key: key, cb: gobreaker.NewCircuitBreaker(settings)}
}

func toDomainState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return entities.CircuitOpen
	case gobreaker.StateHalfOpen:
		return entities.CircuitHalfOpen
	default:
		return entities.CircuitClosed
	}
}

// Execute runs fn through the breaker, short-circuiting immediately with
// gobreaker.ErrOpenState if the breaker is open.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

// State returns the breaker's current state.
func (c *CircuitBreaker) State() State {
	return toDomainState(c.cb.State())
}

// Counts returns the breaker's rolling request/failure/success counters.
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

// Registry holds one CircuitBreaker per "endpoint:method" key, created
// lazily on first use so callers never have to pre-register every route.
type Registry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewRegistry builds a Registry that creates breakers with cfg on demand.
func NewRegistry(cfg BreakerConfig) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for key, creating it if this is the first call
// for that key.
func (r *Registry) Get(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	cb := newBreaker(key, r.cfg)
	r.breakers[key] = cb
	return cb
}

// Snapshot returns a point-in-time stats snapshot for every breaker the
// registry has created so far, for the alerting monitor and metrics.
func (r *Registry) Snapshot() []entities.CircuitBreakerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := make([]entities.CircuitBreakerStats, 0, len(r.breakers))
	for key, cb := range r.breakers {
		counts := cb.Counts()
		stats = append(stats, entities.CircuitBreakerStats{
			Key:       key,
			State:     cb.State(),
			Failures:  counts.TotalFailures,
			Successes: counts.TotalSuccesses,
			Requests:  counts.Requests,
		})
	}
	return stats
}
