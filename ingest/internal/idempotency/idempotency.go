package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInFlight is returned when another submission holds the reservation for
// the same (customer, key) and has not finalized yet.
var ErrInFlight = errors.New("idempotent request already in flight")

// reservedSentinel marks a key that is reserved but not yet finalized.
const reservedSentinel = "__reserved__"

// Result is the outcome of CheckAndReserve.
type Result struct {
	// Reserved is true when the caller won the reservation and must proceed
	// with event creation, then call Finalize.
	Reserved bool

	// EventID and Response are the cached outcome of a prior submission.
	// Set only when Reserved is false.
	EventID  string
	Response json.RawMessage
}

// Cache deduplicates ingestion requests by client-supplied idempotency key.
//
// Availability policy: this cache FAILS CLOSED. When Redis is unreachable the
// caller surfaces 503 rather than risking a duplicate Event. See DESIGN.md.
type Cache interface {
	CheckAndReserve(ctx context.Context, customerID, key string) (Result, error)
	Finalize(ctx context.Context, customerID, key, eventID string, response json.RawMessage) error
	Release(ctx context.Context, customerID, key string) error
	Close() error
}

type record struct {
	EventID  string          `json:"event_id"`
	Response json.RawMessage `json:"response"`
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed idempotency cache.
func NewRedisCache(redisURL string, ttl time.Duration) (Cache, error) {
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

	return &redisCache{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing Redis client, used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) Cache {
	return &redisCache{client: client, ttl: ttl}
}

func cacheKey(customerID, key string) string {
	return fmt.Sprintf("idem:%s:%s", customerID, key)
}

// CheckAndReserve atomically reserves the key for this caller, or returns
// the cached outcome of the submission that already owns it. Two concurrent
// submissions with the same key cannot both win the reservation.
func (c *redisCache) CheckAndReserve(ctx context.Context, customerID, key string) (Result, error) {
	k := cacheKey(customerID, key)

	// SET NX either wins the reservation or tells us somebody holds the key.
	ok, err := c.client.SetNX(ctx, k, reservedSentinel, c.ttl).Result()
	if err != nil {
		return Result{}, fmt.Errorf("idempotency reserve failed: %w", err)
	}
	if ok {
		return Result{Reserved: true}, nil
	}

	val, err := c.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Holder expired between SETNX and GET; take the reservation now.
		ok, err := c.client.SetNX(ctx, k, reservedSentinel, c.ttl).Result()
		if err != nil {
			return Result{}, fmt.Errorf("idempotency reserve failed: %w", err)
		}
		if ok {
			return Result{Reserved: true}, nil
		}
		return Result{}, ErrInFlight
	}
	if err != nil {
		return Result{}, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	if val == reservedSentinel {
		return Result{}, ErrInFlight
	}

	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Result{}, fmt.Errorf("corrupt idempotency record: %w", err)
	}
	return Result{EventID: rec.EventID, Response: rec.Response}, nil
}

// Finalize stores the completed mapping under the key, preserving the TTL
// set at reservation time.
func (c *redisCache) Finalize(ctx context.Context, customerID, key, eventID string, response json.RawMessage) error {
	data, err := json.Marshal(record{EventID: eventID, Response: response})
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(customerID, key), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("idempotency finalize failed: %w", err)
	}
	return nil
}

// releaseScript deletes the key only while it still holds the reservation
// sentinel, so a concurrent finalized record is never destroyed.
const releaseScript = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`

// Release abandons a reservation after a failed submission so the client
// can retry with the same key.
func (c *redisCache) Release(ctx context.Context, customerID, key string) error {
	if err := c.client.Eval(ctx, releaseScript, []string{cacheKey(customerID, key)}, reservedSentinel).Err(); err != nil {
		return fmt.Errorf("idempotency release failed: %w", err)
	}
	return nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
