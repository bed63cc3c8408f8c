package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tbourn/go-insight-backend/internal/insight"
)

const redisKeyPrefix = "insightcache:"

// RedisStore keeps device caches in Redis so counters survive process
// restarts and are shared across replicas.
type RedisStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedis dials addr and verifies connectivity before returning the
// store. A zero ttl means entries never expire.
func NewRedis(addr string, ttl time.Duration) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, deviceID string) (insight.LocalInsightCache, error) {
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+deviceID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return insight.LocalInsightCache{}, ErrNotFound
	}
	if err != nil {
		return insight.LocalInsightCache{}, fmt.Errorf("redis get: %w", err)
	}
	c, err := decodeCache(raw)
	if err != nil {
		return insight.LocalInsightCache{}, fmt.Errorf("decode cache: %w", err)
	}
	return c, nil
}

func (s *RedisStore) Put(ctx context.Context, deviceID string, c insight.LocalInsightCache) error {
	raw, err := encodeCache(c)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+deviceID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
