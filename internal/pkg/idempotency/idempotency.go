// Package idempotency provides Redis-backed deduplication of enqueue
// requests keyed by a client-supplied Idempotency-Key.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// resultTTL is how long completed keys are retained. Client-provided
	// keys get a long window since the client explicitly controls
	// uniqueness.
	resultTTL = 24 * time.Hour

	// reserveTTL is the lock duration while a request is in flight.
	reserveTTL = 5 * time.Minute

	reservedMarker = "reserved"
)

// ErrDuplicateRequest indicates the key is currently being processed by
// another request.
var ErrDuplicateRequest = errors.New("duplicate request: idempotency key already in flight")

// Result stores the outcome of a completed idempotent request.
type Result struct {
	ItemID    string `json:"item_id"`
	CreatedAt int64  `json:"created_at"`
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store implements idempotency keys on Redis using SET NX reservations.
type Store struct {
	rdb *redis.Client
}

// New creates a Store and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connection established", "addr", cfg.Addr)
	return &Store{rdb: rdb}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func buildKey(tenantID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", tenantID, key)
}

// CheckOrReserve returns the cached result for the key if one exists, or
// atomically reserves the key and returns nil. Returns ErrDuplicateRequest
// when the key is reserved by an in-flight request.
func (s *Store) CheckOrReserve(ctx context.Context, tenantID, key string) (*Result, error) {
	k := buildKey(tenantID, key)

	val, err := s.rdb.Get(ctx, k).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	if err == nil {
		if val == reservedMarker {
			return nil, ErrDuplicateRequest
		}
		var result Result
		if err := json.Unmarshal([]byte(val), &result); err != nil {
			return nil, fmt.Errorf("decode cached result: %w", err)
		}
		return &result, nil
	}

	set, err := s.rdb.SetNX(ctx, k, reservedMarker, reserveTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !set {
		// Lost the race to a concurrent request.
		return nil, ErrDuplicateRequest
	}

	return nil, nil
}

// StoreResult records the outcome of a completed request under the key.
func (s *Store) StoreResult(ctx context.Context, tenantID, key, itemID string) error {
	result := Result{ItemID: itemID, CreatedAt: time.Now().Unix()}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if err := s.rdb.Set(ctx, buildKey(tenantID, key), data, resultTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Release drops a reservation after a failed request so the client can
// retry with the same key.
func (s *Store) Release(ctx context.Context, tenantID, key string) error {
	if err := s.rdb.Del(ctx, buildKey(tenantID, key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
