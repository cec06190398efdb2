// Package cache provides byte-oriented cache stores and a caching decorator
// for the remote ledger's detail and document calls.
//
// Two stores are available:
//   - RedisStore: shared between gateway replicas (go-redis).
//   - MemoryStore: process-local, size-bounded LRU with expiry (golang-lru).
//
// Cache failures never fail a request; callers treat them as misses.
package cache

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/tahsilat-gateway/internal/config"
)

// Store is a minimal TTL key/value cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New returns a RedisStore when cfg.RedisAddr is set, otherwise a MemoryStore.
func New(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	if cfg.RedisAddr == "" {
		return NewMemoryStore(cfg.Size, cfg.TTL), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisStore(client, "tahsilat:"), nil
}

// RedisStore keeps entries in Redis under a key prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns (nil, false, nil) on a miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, val, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

// MemoryStore is an in-process LRU. Every entry shares the TTL given at
// construction; the per-call ttl is ignored.
type MemoryStore struct {
	lru *lru.LRU[string, []byte]
}

// NewMemoryStore builds a store holding at most size entries for ttl.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: lru.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	s.lru.Add(key, val)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int { return s.lru.Len() }
