package shopify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimiter paces Admin API calls with one token bucket per shop, shared by
// every request and scan job in the process.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	logger   zerolog.Logger
}

// NewRateLimiter uses Shopify's REST leak rate of 2 requests per second
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return NewRateLimiterWithLimits(2, 4, logger)
}

func NewRateLimiterWithLimits(rps float64, burst int, logger zerolog.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		logger:   logger,
	}
}

// Wait blocks until shop may issue another call
func (r *RateLimiter) Wait(ctx context.Context, shop string) error {
	if r == nil {
		return nil
	}
	l := r.limiter(shop)
	if l.Tokens() < 1 {
		r.logger.Debug().Str("shop", shop).Msg("Throttling Shopify call")
	}
	return l.Wait(ctx)
}

func (r *RateLimiter) limiter(shop string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[shop]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[shop] = l
	}
	return l
}
