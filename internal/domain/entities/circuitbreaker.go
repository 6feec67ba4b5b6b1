package entities

import "time"

// CircuitState mirrors the standard three-state breaker model.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreakerStats is a point-in-time snapshot of one endpoint:method
// breaker, exposed for observability and the alerting monitor.
type CircuitBreakerStats struct {
	Key             string       `json:"key"`
	State           CircuitState `json:"state"`
	Failures        uint32       `json:"failures"`
	Successes       uint32       `json:"successes"`
	Requests        uint32       `json:"requests"`
	NextRetryTime   *time.Time   `json:"nextRetryTime,omitempty"`
	LastTransitionAt time.Time   `json:"lastTransitionAt"`
}
