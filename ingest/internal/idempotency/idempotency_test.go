package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, Cache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewWithClient(client, 24*time.Hour)
}

func TestCheckAndReserve_FirstCallWins(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	res, err := cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	assert.True(t, res.Reserved)
}

func TestCheckAndReserve_SecondCallSeesInFlight(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	res, err := cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	require.True(t, res.Reserved)

	_, err = cache.CheckAndReserve(ctx, "acme", "k1")
	assert.ErrorIs(t, err, ErrInFlight)
}

func TestFinalize_ThenSecondSubmissionGetsCachedOutcome(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	res, err := cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	require.True(t, res.Reserved)

	response := json.RawMessage(`{"event_id":"evt-1","status":"accepted"}`)
	require.NoError(t, cache.Finalize(ctx, "acme", "k1", "evt-1", response))

	res, err = cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	assert.False(t, res.Reserved)
	assert.Equal(t, "evt-1", res.EventID)
	assert.JSONEq(t, string(response), string(res.Response))
}

func TestCheckAndReserve_KeysScopedByCustomer(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	res, err := cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	assert.True(t, res.Reserved)

	res, err = cache.CheckAndReserve(ctx, "globex", "k1")
	require.NoError(t, err)
	assert.True(t, res.Reserved, "same key for another customer is independent")
}

func TestCheckAndReserve_ExpiredRecordReservesAgain(t *testing.T) {
	mr, cache := setupCache(t)
	ctx := context.Background()

	res, err := cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	require.True(t, res.Reserved)
	require.NoError(t, cache.Finalize(ctx, "acme", "k1", "evt-1", json.RawMessage(`{}`)))

	mr.FastForward(25 * time.Hour)

	res, err = cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	assert.True(t, res.Reserved, "expired record no longer short-circuits")
}

func TestRelease_AllowsRetry(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	res, err := cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	require.True(t, res.Reserved)

	require.NoError(t, cache.Release(ctx, "acme", "k1"))

	res, err = cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	assert.True(t, res.Reserved, "released key can be reserved again")
}

func TestRelease_DoesNotDestroyFinalizedRecord(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	res, err := cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	require.True(t, res.Reserved)
	require.NoError(t, cache.Finalize(ctx, "acme", "k1", "evt-1", json.RawMessage(`{}`)))

	// Release after finalize must be a no-op.
	require.NoError(t, cache.Release(ctx, "acme", "k1"))

	res, err = cache.CheckAndReserve(ctx, "acme", "k1")
	require.NoError(t, err)
	assert.False(t, res.Reserved)
	assert.Equal(t, "evt-1", res.EventID)
}

func TestCheckAndReserve_RedisDownFailsClosed(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewWithClient(client, time.Hour)
	mr.Close()

	_, err = cache.CheckAndReserve(context.Background(), "acme", "k1")
	assert.Error(t, err, "cache unavailability surfaces as an error, not a silent pass")
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache("://bad", time.Hour)
	assert.Error(t, err)
}
