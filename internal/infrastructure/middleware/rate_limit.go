package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const rateLimitMessage = "Rate limit exceeded. Please try again later."

// WindowStore records hits in a sliding window. Hit reports whether the hit
// fits under limit and, when it does not, how long until the oldest hit ages out.
type WindowStore interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, time.Duration, error)
}

// MemoryWindowStore keeps a per-key log of hit times in process memory
type MemoryWindowStore struct {
	mu    sync.Mutex
	hits  map[string][]time.Time
	calls int
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{hits: make(map[string][]time.Time)}
}

func (s *MemoryWindowStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := trimBefore(s.hits[key], now.Add(-window))
	if len(log) >= limit {
		s.hits[key] = log
		return false, log[0].Add(window).Sub(now), nil
	}
	s.hits[key] = append(log, now)

	// drop idle keys now and then so the map does not grow without bound
	s.calls++
	if s.calls%1000 == 0 {
		for k, v := range s.hits {
			if len(trimBefore(v, now.Add(-window))) == 0 {
				delete(s.hits, k)
			}
		}
	}
	return true, 0, nil
}

func trimBefore(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	return log[i:]
}

// slidingWindowScript trims, counts and records a hit in one round trip.
// Scores are unix milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, tonumber(oldest[2]) + window - now}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// RedisWindowStore keeps each key's hits in a sorted set, shared by every
// instance pointing at the same Redis.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

func NewRedisWindowStore(client *redis.Client, prefix string) *RedisWindowStore {
	if prefix == "" {
		prefix = "adlign:ratelimit"
	}
	return &RedisWindowStore{client: client, prefix: prefix}
}

func (s *RedisWindowStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, time.Duration, error) {
	res, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefix + ":" + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to record rate limit hit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("failed to record rate limit hit: unexpected reply %v", res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}

// RateLimitConfig configures RateLimitMiddleware
type RateLimitConfig struct {
	Store  WindowStore
	Limit  int
	Window time.Duration
	// OnLimited is called for every rejected request; may be nil.
	OnLimited func()
	Now       func() time.Time
}

// RateLimitMiddleware allows Limit requests per Window per client IP.
// Store errors let the request through.
func RateLimitMiddleware(cfg RateLimitConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			allowed, retryAfter, err := cfg.Store.Hit(r.Context(), ip, cfg.Now(), cfg.Window, cfg.Limit)
			if err != nil {
				logger.Error().Err(err).Str("ip", ip).Msg("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if cfg.OnLimited != nil {
					cfg.OnLimited()
				}
				logger.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("Rate limit exceeded")
				seconds := int(math.Ceil(retryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   rateLimitMessage,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP expects chi's RealIP middleware to have rewritten RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
