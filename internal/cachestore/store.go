// Package cachestore persists the per-device insight cache: scan
// counters, the silence window, and precomputed aggregates. The cache
// is advisory state, so every implementation treats missing or
// unreadable entries as "start fresh" rather than as a hard failure.
package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-insight-backend/internal/insight"
)

// ErrNotFound is returned by Get when no cache exists for the device.
var ErrNotFound = errors.New("cachestore: not found")

// Store reads and writes the serialized per-device cache.
type Store interface {
	Get(ctx context.Context, deviceID string) (insight.LocalInsightCache, error)
	Put(ctx context.Context, deviceID string, c insight.LocalInsightCache) error
	Close() error
}

// Load fetches the device cache, healing missing or corrupt entries to
// a fresh default anchored at now. It never fails the caller; storage
// errors are logged and degrade to the default cache.
func Load(ctx context.Context, s Store, deviceID string, now time.Time) insight.LocalInsightCache {
	c, err := s.Get(ctx, deviceID)
	switch {
	case err == nil:
		return c
	case errors.Is(err, ErrNotFound):
		return insight.DefaultCache(now)
	default:
		log.Warn().Err(err).Str("device_id", deviceID).Msg("cache load failed; using defaults")
		return insight.DefaultCache(now)
	}
}

func encodeCache(c insight.LocalInsightCache) ([]byte, error) {
	return json.Marshal(c)
}

func decodeCache(raw []byte) (insight.LocalInsightCache, error) {
	var c insight.LocalInsightCache
	if err := json.Unmarshal(raw, &c); err != nil {
		return insight.LocalInsightCache{}, err
	}
	return c, nil
}
