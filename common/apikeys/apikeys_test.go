package apikeys

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	keys    map[string]string // hash -> customer
	lookups int
	err     error
}

func (f *fakeStore) LookupKey(ctx context.Context, keyHash string) (string, error) {
	f.lookups++
	if f.err != nil {
		return "", f.err
	}
	if customer, ok := f.keys[keyHash]; ok {
		return customer, nil
	}
	return "", ErrInvalidKey
}

func TestResolve_KnownKey(t *testing.T) {
	store := &fakeStore{keys: map[string]string{HashKey("secret-1"): "acme"}}
	r := NewResolver(store, time.Minute)

	customer, err := r.Resolve(context.Background(), "secret-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", customer)
}

func TestResolve_UnknownKey(t *testing.T) {
	store := &fakeStore{keys: map[string]string{}}
	r := NewResolver(store, time.Minute)

	_, err := r.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestResolve_EmptyKey(t *testing.T) {
	store := &fakeStore{}
	r := NewResolver(store, time.Minute)

	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Zero(t, store.lookups, "empty key never hits the store")
}

func TestResolve_CachesPositiveLookups(t *testing.T) {
	store := &fakeStore{keys: map[string]string{HashKey("secret-1"): "acme"}}
	r := NewResolver(store, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		customer, err := r.Resolve(ctx, "secret-1")
		require.NoError(t, err)
		assert.Equal(t, "acme", customer)
	}
	assert.Equal(t, 1, store.lookups, "repeat resolutions served from cache")
}

func TestResolve_CachesNegativeLookups(t *testing.T) {
	store := &fakeStore{keys: map[string]string{}}
	r := NewResolver(store, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(ctx, "nope")
		assert.ErrorIs(t, err, ErrInvalidKey)
	}
	assert.Equal(t, 1, store.lookups, "misses are cached too")
}

func TestResolve_StoreErrorNotCached(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	r := NewResolver(store, time.Minute)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "secret-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidKey)

	_, _ = r.Resolve(ctx, "secret-1")
	assert.Equal(t, 2, store.lookups, "infrastructure errors are retried, not cached")
}

func TestHashKey_Deterministic(t *testing.T) {
	assert.Equal(t, HashKey("abc"), HashKey("abc"))
	assert.NotEqual(t, HashKey("abc"), HashKey("abd"))
	assert.Len(t, HashKey("abc"), 64)
}
