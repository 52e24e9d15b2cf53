package apikeys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidKey is returned for unknown or revoked API keys.
var ErrInvalidKey = errors.New("invalid api key")

// Store looks up API key records.
type Store interface {
	LookupKey(ctx context.Context, keyHash string) (customerID string, err error)
}

// PostgresStore resolves API keys against the api_keys table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LookupKey(ctx context.Context, keyHash string) (string, error) {
	query := `
		SELECT customer_id FROM api_keys
		WHERE key_hash = $1 AND status = 'active'
	`

	var customerID string
	err := s.pool.QueryRow(ctx, query, keyHash).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidKey
		}
		return "", fmt.Errorf("failed to look up api key: %w", err)
	}
	return customerID, nil
}

// Resolver turns bearer API keys into customer IDs, caching both positive
// and negative lookups for a short TTL to keep the hot path off the database.
type Resolver struct {
	store Store
	mu    sync.RWMutex
	cache map[string]*cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	customerID string
	valid      bool
	expiresAt  time.Time
}

// NewResolver creates a caching resolver over the given store.
func NewResolver(store Store, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		store: store,
		cache: make(map[string]*cacheEntry),
		ttl:   cacheTTL,
	}
}

// HashKey returns the hex SHA-256 digest under which keys are stored.
// Raw keys never touch the database.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// Resolve maps a raw bearer key to its owning customer.
// Returns ErrInvalidKey for unknown or revoked keys.
func (r *Resolver) Resolve(ctx context.Context, rawKey string) (string, error) {
	if rawKey == "" {
		return "", ErrInvalidKey
	}

	hash := HashKey(rawKey)

	if entry := r.get(hash); entry != nil {
		if !entry.valid {
			return "", ErrInvalidKey
		}
		return entry.customerID, nil
	}

	customerID, err := r.store.LookupKey(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			r.set(hash, &cacheEntry{valid: false})
			return "", ErrInvalidKey
		}
		return "", err
	}

	r.set(hash, &cacheEntry{customerID: customerID, valid: true})
	return customerID, nil
}

func (r *Resolver) get(hash string) *cacheEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.cache[hash]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry
}

func (r *Resolver) set(hash string, entry *cacheEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.expiresAt = time.Now().Add(r.ttl)
	r.cache[hash] = entry

	// Opportunistic cleanup of expired entries.
	now := time.Now()
	for k, e := range r.cache {
		if now.After(e.expiresAt) {
			delete(r.cache, k)
		}
	}
}
