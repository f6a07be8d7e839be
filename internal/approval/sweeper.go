package approval

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is the Sweeper period when none is set.
const DefaultSweepInterval = 5 * time.Second

// Sweeper expires overdue requests in the background so they do not stay
// pending until the next PendingRequests call.
type Sweeper struct {
	Workflow *Workflow
	Interval time.Duration
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.Workflow.Sweep(ctx)
			if err != nil {
				slog.Error("approval sweep failed", "err", err)
			}
			if n > 0 {
				slog.Info("expired approval requests", "count", n)
			}
		}
	}
}
