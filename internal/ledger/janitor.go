package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultJanitorInterval = 5 * time.Minute

// Janitor periodically evicts expired records. It backstops the
// database-side expiry so a long-running server does not accumulate
// yesterday's scans.
type Janitor struct {
	store    Store
	interval time.Duration
}

// NewJanitor creates a Janitor sweeping store every interval.
func NewJanitor(store Store, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	return &Janitor{store: store, interval: interval}
}

// Run sweeps until ctx is cancelled. Sweep failures are logged, not
// fatal; the next tick retries.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.store.DeleteExpired(ctx)
			if err != nil {
				zap.L().Warn("janitor sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Info("expired scans evicted", zap.Int64("deleted", n))
			}
		}
	}
}
