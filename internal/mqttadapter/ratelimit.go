package mqttadapter

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// messageRateLimiter tracks inbound message rates and drops messages
// once the configured per-interval threshold is exceeded, using
// atomic counters to stay lock-free on the hot path. Grounded on
// internal/mqtt/subscriber.go's messageRateLimiter.
type messageRateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger

	// dropCounter, if non-nil, mirrors every drop to a Prometheus
	// counter. Optional: nil in tests that don't wire metrics.
	dropCounter counter
}

func newMessageRateLimiter(limit int64, interval time.Duration, logger *slog.Logger, dropCounter counter) *messageRateLimiter {
	return &messageRateLimiter{limit: limit, interval: interval, logger: logger, dropCounter: dropCounter}
}

func (r *messageRateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := r.count.Swap(0)
			dropped := r.dropped.Swap(0)
			if dropped > 0 {
				r.logger.Warn("mqtt messages dropped due to rate limit",
					"received", count, "dropped", dropped,
					"interval", r.interval.String(), "limit", r.limit)
			}
		}
	}
}

func (r *messageRateLimiter) allow() bool {
	n := r.count.Add(1)
	if n > r.limit {
		r.dropped.Add(1)
		if r.dropCounter != nil {
			r.dropCounter.Inc()
		}
		return false
	}
	return true
}
