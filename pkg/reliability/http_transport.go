package reliability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
)

// ClientConfig configures an HTTP Client used for outbound notifications
// (compliance reports, integration webhooks).
type ClientConfig struct {
	UserAgent string
	Timeout   time.Duration
	Retry     RetryConfig
	Breaker   BreakerConfig
	// RatePerSecond caps steady-state outbound request rate to a given
	// endpoint; zero disables limiting. Burst allows short spikes above
	// that rate. Protects downstream notification providers (e.g.
	// SendGrid) from being hammered by a retry storm.
	RatePerSecond float64
	Burst         int
}

// Client sends HTTP requests through a per-"endpoint:method" circuit
// breaker with full-jitter retry on transient failures, optionally capped
// by a token-bucket rate limiter.
type Client struct {
	cfg       ClientConfig
	http      *http.Client
	breakers  *Registry
	limiter   *rate.Limiter
	userAgent string
}

// NewClient builds a Client per cfg.
func NewClient(cfg ClientConfig) *Client {
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		breakers:  NewRegistry(cfg.Breaker),
		limiter:   limiter,
		userAgent: cfg.UserAgent,
	}
}

// Do sends an HTTP request built from method/url/body, keyed by
// "endpoint:method" for circuit breaking and retried per cfg.Retry on
// transient failures. The response body is fully read and returned so the
// caller need not manage the underlying connection.
func (c *Client) Do(ctx context.Context, endpoint, method, url string, body []byte) (*http.Response, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, apierrors.Wrap(apierrors.KindTransient, "rate limiter wait", err)
		}
	}

	key := fmt.Sprintf("%s:%s", endpoint, method)
	breaker := c.breakers.Get(key)

	var resp *http.Response
	var respBody []byte

	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
			if err != nil {
				return apierrors.Wrap(apierrors.KindInvalidEvent, "build request", err)
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("User-Agent", c.userAgent)

			r, err := c.http.Do(req)
			if err != nil {
				return apierrors.Wrap(apierrors.KindTransient, "request failed", err)
			}
			defer r.Body.Close()

			b, err := io.ReadAll(r.Body)
			if err != nil {
				return apierrors.Wrap(apierrors.KindTransient, "read response body", err)
			}

			if r.StatusCode >= 500 {
				return apierrors.New(apierrors.KindTransient, fmt.Sprintf("server error: %d", r.StatusCode))
			}

			resp, respBody = r, b
			return nil
		})
	})
	if err != nil {
		return nil, nil, mapBreakerError(key, err)
	}
	return resp, respBody, nil
}

func mapBreakerError(key string, err error) error {
	if _, ok := apierrors.KindOf(err); ok {
		return err
	}
	if err.Error() == "circuit breaker is open" {
		return apierrors.New(apierrors.KindCircuitOpen, fmt.Sprintf("breaker open for %s", key))
	}
	return err
}
