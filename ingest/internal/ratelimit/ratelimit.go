package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaywire-systems/relaywire-stack/ingest/internal/metrics"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is how long the caller should wait before resubmitting.
	// Only set when Allowed is false.
	RetryAfter time.Duration
}

// RateLimiter performs per-customer admission control.
type RateLimiter interface {
	Admit(ctx context.Context, customerID string) (Decision, error)
	Close() error
}

type redisRateLimiter struct {
	client *redis.Client
	quota  int64
	window time.Duration
	now    func() time.Time
}

// Atomic fixed-window increment. The counter TTL is 2x the window so a
// just-expired bucket stays readable briefly; stale buckets are never
// consulted because the key embeds the bucket number.
const admitScript = `
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return count
`

// NewRedisRateLimiter creates a fixed-window rate limiter backed by Redis.
// The increment is atomic, so concurrent ingest instances sharing the same
// Redis never over-admit.
func NewRedisRateLimiter(redisURL string, quota int, window time.Duration) (RateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &redisRateLimiter{
		client: client,
		quota:  int64(quota),
		window: window,
		now:    time.Now,
	}, nil
}

// NewWithClient wraps an existing Redis client, used by tests.
func NewWithClient(client *redis.Client, quota int, window time.Duration, now func() time.Time) RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &redisRateLimiter{client: client, quota: int64(quota), window: window, now: now}
}

// Admit atomically increments the current window's counter for the customer
// and rejects once the count exceeds the quota. RetryAfter is the time
// remaining in the current window.
func (r *redisRateLimiter) Admit(ctx context.Context, customerID string) (Decision, error) {
	now := r.now()
	bucket := now.UnixNano() / r.window.Nanoseconds()
	key := fmt.Sprintf("ratelimit:%s:%d", customerID, bucket)
	ttlMillis := (2 * r.window).Milliseconds()

	count, err := r.client.Eval(ctx, admitScript, []string{key}, ttlMillis).Int64()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	if count > r.quota {
		windowEnd := time.Unix(0, (bucket+1)*r.window.Nanoseconds())
		retryAfter := windowEnd.Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Millisecond
		}
		metrics.RateLimitHits.WithLabelValues(customerID).Inc()
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true}, nil
}

func (r *redisRateLimiter) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// NoOpRateLimiter always admits requests (for testing or disabled rate limiting).
type NoOpRateLimiter struct{}

func (n *NoOpRateLimiter) Admit(ctx context.Context, customerID string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (n *NoOpRateLimiter) Close() error {
	return nil
}
