package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"adlign-personalization-layer/internal/domain"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// RetryConfig controls retries of transient Shopify failures (5xx, network).
// Rate limit responses are not retried here; they surface as domain.ErrRateLimited
// so callers can apply their own pacing.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig returns the retry policy used by the API server
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}
}

func (rc RetryConfig) backoff(attempt int) time.Duration {
	d := rc.InitialBackoff
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * rc.Multiplier)
		if d > rc.MaxBackoff {
			return rc.MaxBackoff
		}
	}
	return d
}

// statusOf extracts the HTTP status from a go-shopify error, 0 when unknown.
func statusOf(err error) int {
	var rl goshopify.RateLimitError
	if errors.As(err, &rl) {
		return http.StatusTooManyRequests
	}
	var rlp *goshopify.RateLimitError
	if errors.As(err, &rlp) && rlp != nil {
		return http.StatusTooManyRequests
	}
	var re goshopify.ResponseError
	if errors.As(err, &re) {
		return re.Status
	}
	var rep *goshopify.ResponseError
	if errors.As(err, &rep) && rep != nil {
		return rep.Status
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "Exceeded"):
		return http.StatusTooManyRequests
	case strings.Contains(msg, "401"), strings.Contains(msg, "Invalid API key or access token"):
		return http.StatusUnauthorized
	}
	return 0
}

// classify maps Shopify failures onto domain errors, keeping the original text.
func classify(op string, err error) error {
	switch status := statusOf(err); {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("failed to %s: %w: %v", op, domain.ErrRateLimited, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("failed to %s: %w: %v", op, domain.ErrUnauthorized, err)
	case status == http.StatusNotFound:
		return fmt.Errorf("failed to %s: %w: %v", op, domain.ErrNotFound, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status := statusOf(err)
	return status == 0 || status >= http.StatusInternalServerError
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
