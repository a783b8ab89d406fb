package store

import (
	"context"
	"log/slog"
	"time"
)

// RunJanitor prunes sessions idle longer than ttl every interval until ctx
// ends. It is meant for stores without native expiry.
func RunJanitor(ctx context.Context, p Pruner, ttl, interval time.Duration, logger *slog.Logger) error {
	if ttl <= 0 || interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n, err := p.Prune(ctx, now.Add(-ttl))
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("session prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned idle sessions", "count", n)
			}
		}
	}
}
