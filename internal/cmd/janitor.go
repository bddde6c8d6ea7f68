package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// sessionPurger deletes expired sessions. session.Manager implements it.
type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// runJanitor purges expired sessions every interval until ctx is done.
// Purge failures are logged and retried on the next tick.
func runJanitor(ctx context.Context, purger sessionPurger, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		logger.Info("session janitor disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := purger.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("session purge failed", zap.Error(err))
			}
		}
	}
}
