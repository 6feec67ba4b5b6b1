package integrity

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler periodically runs a Verifier sweep over a trailing window,
// driven by a robfig/cron entry rather than a bare ticker so the sweep
// cadence can later grow a real cron expression (e.g. "off-hours only")
// without changing the scheduler's shape.
type Scheduler struct {
	verifier *Verifier
	interval time.Duration
	window   time.Duration
}

// NewScheduler builds a Scheduler that sweeps every interval over the
// trailing window of events ending at the time the sweep starts.
func NewScheduler(verifier *Verifier, interval, window time.Duration) *Scheduler {
	return &Scheduler{verifier: verifier, interval: interval, window: window}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.sweep(ctx)
	})
	if err != nil {
		// interval is always a valid duration string; this would only
		// fire on a programming error in the caller's config.
		return
	}

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func (s *Scheduler) sweep(ctx context.Context) {
	end := time.Now().UTC()
	start := end.Add(-s.window)
	// Errors are logged inside Verifier.Run; a failed sweep should not
	// stop the next tick from being attempted.
	_, _ = s.verifier.Run(ctx, start, end, "scheduler")
}
