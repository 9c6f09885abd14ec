package limiter

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cleaner removes stale limiter state.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StartJanitor schedules periodic cleanup on a cron spec such as "@every 10m".
// The returned cron is already running; call Stop on shutdown.
func StartJanitor(ctx context.Context, spec string, c Cleaner, olderThan time.Duration, log *zap.Logger) (*cron.Cron, error) {
	cr := cron.New()
	_, err := cr.AddFunc(spec, func() { runCleanup(ctx, c, olderThan, log) })
	if err != nil {
		return nil, err
	}
	cr.Start()
	return cr, nil
}

func runCleanup(ctx context.Context, c Cleaner, olderThan time.Duration, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := c.Cleanup(ctx, olderThan)
	if err != nil {
		log.Warn("limiter cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Debug("limiter cleanup", zap.Int64("deleted", n))
	}
}
