package idempotency

import (
	"context"
	"log/slog"
	"time"
)

// SweepNow evicts expired records and logs the outcome. The mutation
// pipeline calls this opportunistically after each successful request;
// deployments that want eager eviction can also run RunPeriodicCleanup.
func SweepNow(ctx context.Context, repo Repository) (int64, error) {
	evicted, err := repo.Sweep(ctx, time.Now().UTC())
	if err != nil {
		slog.ErrorContext(ctx, "failed to sweep idempotency records", "error", err)
		return 0, err
	}

	if evicted > 0 {
		slog.InfoContext(ctx, "swept expired idempotency records", "evicted", evicted)
	}
	return evicted, nil
}

// RunPeriodicCleanup sweeps the repository at the given interval until the
// stop channel is closed. This function blocks and should typically be run
// in a goroutine.
func RunPeriodicCleanup(repo Repository, interval time.Duration, stopChan <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := context.Background()
	if _, err := SweepNow(ctx, repo); err != nil {
		slog.Error("initial idempotency sweep failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := SweepNow(ctx, repo); err != nil {
				slog.Error("periodic idempotency sweep failed", "error", err)
			}
		case <-stopChan:
			slog.Info("stopping idempotency cleanup")
			return
		}
	}
}
