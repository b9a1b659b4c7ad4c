package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FailoverStore serves from the primary tier until it fails, then falls
// back to the secondary. The primary is probed again after a cooldown.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

const recoveryProbeInterval = time.Minute

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (s *FailoverStore) markDown(err error) {
	s.logger.Error().Err(err).Msg("primary cache store failed, falling back to memory")
	s.isDown.Store(true)
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

// shouldProbe reports whether enough time passed to try the primary again.
func (s *FailoverStore) shouldProbe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCheck) < recoveryProbeInterval {
		return false
	}
	s.lastCheck = time.Now()
	return true
}

func (s *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.isDown.Load() || s.shouldProbe() {
		value, err := s.primary.Get(ctx, key)
		if err == nil {
			s.isDown.Store(false)
			return value, nil
		}
		s.markDown(err)
	}
	return s.fallback.Get(ctx, key)
}

func (s *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.isDown.Load() || s.shouldProbe() {
		err := s.primary.Set(ctx, key, value, ttl)
		if err == nil {
			s.isDown.Store(false)
			// Mirror into the fallback so a later failover still sees it.
			_ = s.fallback.Set(ctx, key, value, ttl)
			return nil
		}
		s.markDown(err)
	}
	return s.fallback.Set(ctx, key, value, ttl)
}

func (s *FailoverStore) Delete(ctx context.Context, keys ...string) error {
	_ = s.fallback.Delete(ctx, keys...)
	if !s.isDown.Load() || s.shouldProbe() {
		err := s.primary.Delete(ctx, keys...)
		if err == nil {
			s.isDown.Store(false)
			return nil
		}
		s.markDown(err)
	}
	return nil
}

func (s *FailoverStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if !s.isDown.Load() || s.shouldProbe() {
		keys, err := s.primary.Keys(ctx, prefix)
		if err == nil {
			s.isDown.Store(false)
			return keys, nil
		}
		s.markDown(err)
	}
	return s.fallback.Keys(ctx, prefix)
}
