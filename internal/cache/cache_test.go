package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bairro/internal/models"
)

func newTestCache(t *testing.T) (*KeyedCache, *MemoryStore) {
	t.Helper()
	logger := zerolog.Nop()
	store := NewMemoryStore()
	return New(store, 30*time.Minute, &logger), store
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("businesses", map[string]string{"category": "food", "search": "pizza"})
	b := Key("businesses", map[string]string{"search": "pizza", "category": "food"})
	assert.Equal(t, a, b)
	assert.Equal(t, "cache_businesses_category=food&search=pizza", a)

	noParams := Key("categories", nil)
	assert.Equal(t, "cache_categories_", noParams)
}

func TestCacheSetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	payload := []models.Category{{ID: "food", Name: "Food"}}
	c.Set(ctx, models.EndpointCategories, nil, payload)

	entry, err := c.Get(ctx, models.EndpointCategories, nil)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.IsStale)
	assert.Equal(t, models.EndpointCategories, entry.Metadata.Endpoint)
	assert.Equal(t, models.CacheVersion, entry.Metadata.Version)

	var out []models.Category
	require.NoError(t, entry.Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "Food", out[0].Name)
}

func TestCacheMiss(t *testing.T) {
	c, _ := newTestCache(t)

	entry, err := c.Get(context.Background(), "businesses", map[string]string{"category": "none"})
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCacheStaleness(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, models.EndpointCategories, nil, []string{"a"})

	t.Run("fresh before half maxAge", func(t *testing.T) {
		c.now = func() time.Time { return base.Add(14 * time.Minute) }
		entry, err := c.Get(ctx, models.EndpointCategories, nil)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.False(t, entry.IsStale)
	})

	t.Run("stale from half maxAge", func(t *testing.T) {
		c.now = func() time.Time { return base.Add(15 * time.Minute) }
		entry, err := c.Get(ctx, models.EndpointCategories, nil)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.True(t, entry.IsStale)
	})

	t.Run("expired at maxAge", func(t *testing.T) {
		c.now = func() time.Time { return base.Add(30 * time.Minute) }
		entry, err := c.Get(ctx, models.EndpointCategories, nil)
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("expired entry removed on read", func(t *testing.T) {
		c.now = func() time.Time { return base }
		entry, err := c.Get(ctx, models.EndpointCategories, nil)
		require.NoError(t, err)
		assert.Nil(t, entry, "expired pair should have been deleted by the previous read")
	})
}

func TestCacheCorruptMetadata(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, models.EndpointCategories, nil, []string{"a"})
	key := Key(models.EndpointCategories, nil)
	require.NoError(t, store.Set(ctx, metadataKey(key), []byte("{not json"), time.Hour))

	entry, err := c.Get(ctx, models.EndpointCategories, nil)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// the corrupt pair is dropped, not left behind
	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCacheRemove(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, models.EndpointBusinesses, nil, []string{"a"})
	require.NoError(t, c.Remove(ctx, models.EndpointBusinesses, nil))

	entry, err := c.Get(ctx, models.EndpointBusinesses, nil)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCacheClear(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, models.EndpointCategories, nil, []string{"a"})
	c.Set(ctx, models.EndpointBusinesses, nil, []string{"b"})
	require.NoError(t, c.Clear(ctx))

	stats := c.Stats(ctx)
	assert.Equal(t, 0, stats.TotalItems)
}

// flakyStore fails writes until the eviction pass has run, which is how a
// full backend behaves once space is reclaimed.
type flakyStore struct {
	*MemoryStore
	failWrites bool
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.failWrites {
		return errors.New("store full")
	}
	return s.MemoryStore.Set(ctx, key, value, ttl)
}

func (s *flakyStore) Delete(ctx context.Context, keys ...string) error {
	err := s.MemoryStore.Delete(ctx, keys...)
	s.failWrites = false
	return err
}

func TestCacheSetEvictsAndRetries(t *testing.T) {
	logger := zerolog.Nop()
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	c := New(store, 30*time.Minute, &logger)
	ctx := context.Background()

	// essential and non-essential entries already present
	c.Set(ctx, models.EndpointCategories, nil, []string{"a"})
	c.Set(ctx, models.EndpointSearch, map[string]string{"q": "pizza"}, []string{"b"})

	store.failWrites = true
	c.Set(ctx, models.EndpointBusinesses, nil, []string{"c"})

	entry, err := c.Get(ctx, models.EndpointBusinesses, nil)
	require.NoError(t, err)
	require.NotNil(t, entry, "write should succeed after eviction")

	essential, err := c.Get(ctx, models.EndpointCategories, nil)
	require.NoError(t, err)
	assert.NotNil(t, essential, "essential entries survive eviction")

	evicted, err := c.Get(ctx, models.EndpointSearch, map[string]string{"q": "pizza"})
	require.NoError(t, err)
	assert.Nil(t, evicted, "non-essential entries are evicted")
}

func TestCacheStats(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base.Add(-10 * time.Minute) }
	c.Set(ctx, models.EndpointCategories, nil, []string{"old"})
	c.now = func() time.Time { return base.Add(-time.Minute) }
	c.Set(ctx, models.EndpointBusinesses, nil, []string{"new"})
	c.now = func() time.Time { return base }

	// corrupt metadata rows are skipped, not counted
	require.NoError(t, store.Set(ctx, metadataKey(Key("broken", nil)), []byte("{"), time.Hour))

	stats := c.Stats(ctx)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Greater(t, stats.TotalSize, 0)
	assert.Equal(t, 10*time.Minute, stats.OldestAge)
	assert.Equal(t, time.Minute, stats.NewestAge)
}
