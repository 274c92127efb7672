package limiter

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	lferrors "github.com/23skdu/lockfree/internal/errors"
	"github.com/23skdu/lockfree/internal/metrics"
)

// Config holds rate limiter configuration
type Config struct {
	Rate  int // 0 means disabled
	Burst int // 0 means use Rate
}

// RateLimiter paces a single producer with a token bucket
type RateLimiter struct {
	limiter   *rate.Limiter
	enabled   bool
	allowed   prometheus.Counter
	cancelled prometheus.Counter
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg Config) *RateLimiter {
	l := &RateLimiter{
		allowed:   metrics.RateLimitWaitsTotal.WithLabelValues("allowed"),
		cancelled: metrics.RateLimitWaitsTotal.WithLabelValues("cancelled"),
	}
	if cfg.Rate <= 0 {
		return l
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Rate
	}
	l.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	l.enabled = true
	return l
}

// Enabled reports whether Wait ever blocks.
func (l *RateLimiter) Enabled() bool { return l.enabled }

// Wait blocks until the next push is allowed. It fails when ctx is done or its
// deadline would pass before a token is available.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if !l.enabled {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		l.cancelled.Inc()
		return lferrors.WrapResourceError(err, "limiter.Wait", "pacing wait aborted").
			WithContext("rate", float64(l.limiter.Limit()))
	}
	l.allowed.Inc()
	return nil
}
