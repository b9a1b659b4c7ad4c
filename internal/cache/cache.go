package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"bairro/internal/metrics"
	"bairro/internal/models"

	"github.com/rs/zerolog"
)

// Metadata is stored next to every entry under "<key>_metadata".
type Metadata struct {
	Timestamp int64             `json:"timestamp"` // ms since epoch
	Endpoint  string            `json:"endpoint"`
	Params    map[string]string `json:"params,omitempty"`
	DataSize  int               `json:"dataSize"`
	Version   string            `json:"version"`
}

// Entry is a successful cache read. IsStale signals that the data is past
// half of the max age and the caller should schedule a background refresh
// while still using it.
type Entry struct {
	Data     json.RawMessage
	Metadata Metadata
	IsStale  bool
}

func (e *Entry) Decode(out interface{}) error {
	return json.Unmarshal(e.Data, out)
}

type Stats struct {
	TotalItems int           `json:"total_items"`
	TotalSize  int           `json:"total_size"`
	OldestAge  time.Duration `json:"oldest_age"`
	NewestAge  time.Duration `json:"newest_age"`
}

// KeyedCache is a TTL cache keyed by (endpoint, params) on top of a Store.
// Freshness is decided from entry metadata, not from store TTLs; the store
// TTL is only a backstop against unbounded growth.
type KeyedCache struct {
	store  Store
	maxAge time.Duration
	logger *zerolog.Logger

	// essential endpoints survive quota evictions
	essential map[string]bool

	now func() time.Time
}

func New(store Store, maxAge time.Duration, logger *zerolog.Logger) *KeyedCache {
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &KeyedCache{
		store:  store,
		maxAge: maxAge,
		logger: logger,
		essential: map[string]bool{
			models.EndpointCategories: true,
			models.EndpointBusinesses: true,
		},
		now: time.Now,
	}
}

// Key derives a deterministic cache key: identical logical queries map to
// identical keys regardless of parameter order.
func Key(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params[k]))
	}
	return models.CacheKeyPrefix + endpoint + "_" + strings.Join(pairs, "&")
}

func metadataKey(cacheKey string) string {
	return cacheKey + "_metadata"
}

// Get returns the entry for (endpoint, params) or nil when absent or
// expired. Expired entries are removed on read.
func (c *KeyedCache) Get(ctx context.Context, endpoint string, params map[string]string) (*Entry, error) {
	cacheKey := Key(endpoint, params)

	data, err := c.store.Get(ctx, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", cacheKey, err)
	}
	rawMeta, err := c.store.Get(ctx, metadataKey(cacheKey))
	if err != nil {
		return nil, fmt.Errorf("cache get metadata %s: %w", cacheKey, err)
	}
	if data == nil || rawMeta == nil {
		metrics.IncCacheRead("miss")
		return nil, nil
	}

	var meta Metadata
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		// Corrupt metadata: drop the pair and report a miss.
		c.logger.Warn().Str("key", cacheKey).Msg("corrupt cache metadata, dropping entry")
		_ = c.store.Delete(ctx, cacheKey, metadataKey(cacheKey))
		metrics.IncCacheRead("miss")
		return nil, nil
	}

	age := c.now().Sub(time.UnixMilli(meta.Timestamp))
	if age >= c.maxAge {
		metrics.IncCacheRead("expired")
		_ = c.store.Delete(ctx, cacheKey, metadataKey(cacheKey))
		return nil, nil
	}

	entry := &Entry{
		Data:     data,
		Metadata: meta,
		IsStale:  age >= c.maxAge/2,
	}
	if entry.IsStale {
		metrics.IncCacheRead("stale")
	} else {
		metrics.IncCacheRead("hit")
	}
	return entry, nil
}

// Set stores the payload with fresh metadata. Write failures trigger one
// eviction of all non-essential entries and a single retry; a second
// failure is logged and dropped, never returned to the caller.
func (c *KeyedCache) Set(ctx context.Context, endpoint string, params map[string]string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("cache set: encode payload")
		return
	}

	meta := Metadata{
		Timestamp: c.now().UnixMilli(),
		Endpoint:  endpoint,
		Params:    params,
		DataSize:  len(data),
		Version:   models.CacheVersion,
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("cache set: encode metadata")
		return
	}

	cacheKey := Key(endpoint, params)
	if err := c.write(ctx, cacheKey, data, rawMeta); err == nil {
		return
	}

	c.logger.Warn().Str("key", cacheKey).Msg("cache write failed, evicting non-essential entries")
	c.evictNonEssential(ctx)

	if err := c.write(ctx, cacheKey, data, rawMeta); err != nil {
		c.logger.Error().Err(err).Str("key", cacheKey).Msg("cache write failed after eviction, dropping")
	}
}

func (c *KeyedCache) write(ctx context.Context, cacheKey string, data, rawMeta []byte) error {
	if err := c.store.Set(ctx, cacheKey, data, c.maxAge); err != nil {
		return err
	}
	return c.store.Set(ctx, metadataKey(cacheKey), rawMeta, c.maxAge)
}

// evictNonEssential removes every cache pair whose endpoint is not in the
// essential set.
func (c *KeyedCache) evictNonEssential(ctx context.Context) {
	keys, err := c.store.Keys(ctx, models.CacheKeyPrefix)
	if err != nil {
		c.logger.Error().Err(err).Msg("cache eviction: list keys")
		return
	}

	var victims []string
	for _, key := range keys {
		if strings.HasSuffix(key, "_metadata") {
			continue
		}
		if c.isEssentialKey(key) {
			continue
		}
		victims = append(victims, key, metadataKey(key))
	}
	if len(victims) == 0 {
		return
	}
	if err := c.store.Delete(ctx, victims...); err != nil {
		c.logger.Error().Err(err).Msg("cache eviction failed")
		return
	}
	metrics.IncCacheEviction()
	c.logger.Info().Int("evicted", len(victims)/2).Msg("evicted non-essential cache entries")
}

func (c *KeyedCache) isEssentialKey(key string) bool {
	rest := strings.TrimPrefix(key, models.CacheKeyPrefix)
	for endpoint := range c.essential {
		// Exact endpoint match: "businesses_..." but not "businesses/search_...".
		if strings.HasPrefix(rest, endpoint+"_") {
			return true
		}
	}
	return false
}

// Remove deletes a single (endpoint, params) pair.
func (c *KeyedCache) Remove(ctx context.Context, endpoint string, params map[string]string) error {
	cacheKey := Key(endpoint, params)
	return c.store.Delete(ctx, cacheKey, metadataKey(cacheKey))
}

// Clear removes every cache entry.
func (c *KeyedCache) Clear(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, models.CacheKeyPrefix)
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

// Stats aggregates entry metadata. Corrupt metadata entries are skipped.
func (c *KeyedCache) Stats(ctx context.Context) Stats {
	keys, err := c.store.Keys(ctx, models.CacheKeyPrefix)
	if err != nil {
		c.logger.Error().Err(err).Msg("cache stats: list keys")
		return Stats{}
	}

	now := c.now()
	stats := Stats{}
	oldest := now
	newest := time.Time{}

	for _, key := range keys {
		if !strings.HasSuffix(key, "_metadata") {
			continue
		}
		raw, err := c.store.Get(ctx, key)
		if err != nil || raw == nil {
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}

		stats.TotalItems++
		stats.TotalSize += meta.DataSize
		at := time.UnixMilli(meta.Timestamp)
		if at.Before(oldest) {
			oldest = at
		}
		if at.After(newest) {
			newest = at
		}
	}

	if stats.TotalItems > 0 {
		stats.OldestAge = now.Sub(oldest)
		if !newest.IsZero() {
			stats.NewestAge = now.Sub(newest)
		}
	}
	return stats
}
