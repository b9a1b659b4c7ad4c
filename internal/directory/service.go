package directory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bairro/internal/config"
	"bairro/internal/domain"
	"bairro/internal/models"
)

// Connectivity reports whether the remote API is currently reachable.
// The sync coordinator satisfies this.
type Connectivity interface {
	IsOnline() bool
}

// Service is the read path of the directory. Reads go cache-first with
// stale-while-revalidate, and drop to the local mirror when the remote
// API is unreachable.
type Service struct {
	remote  domain.RemoteAPI
	cache   domain.ResponseCache
	mirror  domain.BusinessMirror
	conn    Connectivity
	policy  string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewService(
	api domain.RemoteAPI,
	responseCache domain.ResponseCache,
	mirror domain.BusinessMirror,
	conn Connectivity,
	cfg config.APIConfig,
	logger *zerolog.Logger,
) *Service {
	return &Service{
		remote:  api,
		cache:   responseCache,
		mirror:  mirror,
		conn:    conn,
		policy:  cfg.FallbackPolicy,
		timeout: cfg.Timeout.Std(),
		logger:  logger.With().Str("component", "directory").Logger(),
	}
}

// Categories lists the directory categories. Fresh cache answers without
// touching the network; stale cache answers immediately and refreshes in
// the background. When the remote is unreachable and nothing usable is
// cached, the configured fallback policy decides between the built-in
// category set and surfacing the error.
func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	if entry, err := s.cache.Get(ctx, models.EndpointCategories, nil); err == nil && entry != nil {
		var categories []models.Category
		if derr := entry.Decode(&categories); derr == nil {
			if entry.IsStale {
				s.refreshCategoriesAsync()
			}
			return categories, nil
		}
		s.logger.Warn().Msg("cached categories undecodable, refetching")
	}

	categories, err := s.remote.Categories(ctx)
	if err == nil {
		s.cache.Set(ctx, models.EndpointCategories, nil, categories)
		return categories, nil
	}

	if s.policy == config.FallbackPolicyFail {
		return nil, err
	}
	s.logger.Warn().Err(err).Msg("category fetch failed, serving built-in set")
	return FallbackCategories(), nil
}

func (s *Service) refreshCategoriesAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		categories, err := s.remote.Categories(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Msg("background category refresh failed")
			return
		}
		s.cache.Set(ctx, models.EndpointCategories, nil, categories)
	}()
}

// Businesses lists businesses matching the filter, with locally pending
// records merged in.
func (s *Service) Businesses(ctx context.Context, filter models.BusinessFilter) ([]models.Business, error) {
	return s.businessList(ctx, models.EndpointBusinesses, filter.Params(), func(ctx context.Context) ([]models.Business, error) {
		return s.remote.Businesses(ctx, filter)
	}, filter)
}

func (s *Service) BusinessesByCategory(ctx context.Context, category string) ([]models.Business, error) {
	filter := models.BusinessFilter{Category: category}
	return s.businessList(ctx, models.EndpointCategory, map[string]string{"category": category}, func(ctx context.Context) ([]models.Business, error) {
		return s.remote.BusinessesByCategory(ctx, category)
	}, filter)
}

func (s *Service) BusinessesBySubcategory(ctx context.Context, subcategory string) ([]models.Business, error) {
	filter := models.BusinessFilter{Subcategory: subcategory}
	return s.businessList(ctx, models.EndpointSubcategory, map[string]string{"subcategory": subcategory}, func(ctx context.Context) ([]models.Business, error) {
		return s.remote.BusinessesBySubcategory(ctx, subcategory)
	}, filter)
}

// SearchBusinesses runs a text search. An empty result set is a valid
// answer and is cached like any other.
func (s *Service) SearchBusinesses(ctx context.Context, q string) ([]models.Business, error) {
	filter := models.BusinessFilter{Search: q}
	return s.businessList(ctx, models.EndpointSearch, map[string]string{"q": q}, func(ctx context.Context) ([]models.Business, error) {
		return s.remote.SearchBusinesses(ctx, q)
	}, filter)
}

// BusinessByID resolves a single business. Temporary ids and offline
// reads come from the local mirror.
func (s *Service) BusinessByID(ctx context.Context, id string) (*models.Business, error) {
	if local, err := s.mirror.LocalBusinessByID(ctx, id); err == nil && local != nil {
		if local.IsLocal() || local.SyncStatus == models.SyncStatusPendingSync || !s.conn.IsOnline() {
			return local, nil
		}
	}
	if !s.conn.IsOnline() {
		return s.mirror.LocalBusinessByID(ctx, id)
	}

	b, err := s.remote.BusinessByID(ctx, id)
	if err != nil {
		if local, lerr := s.mirror.LocalBusinessByID(ctx, id); lerr == nil && local != nil {
			s.logger.Warn().Err(err).Str("business_id", id).Msg("remote lookup failed, serving mirror")
			return local, nil
		}
		return nil, err
	}
	return b, nil
}

type fetchFunc func(ctx context.Context) ([]models.Business, error)

func (s *Service) businessList(ctx context.Context, endpoint string, params map[string]string, fetch fetchFunc, filter models.BusinessFilter) ([]models.Business, error) {
	if entry, err := s.cache.Get(ctx, endpoint, params); err == nil && entry != nil {
		var businesses []models.Business
		if derr := entry.Decode(&businesses); derr == nil {
			if entry.IsStale {
				s.refreshListAsync(endpoint, params, fetch)
			}
			return s.mergePending(ctx, businesses, filter), nil
		}
		s.logger.Warn().Str("endpoint", endpoint).Msg("cached list undecodable, refetching")
	}

	if !s.conn.IsOnline() {
		return s.localList(ctx, filter)
	}

	businesses, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, endpoint, params, businesses)
	return s.mergePending(ctx, businesses, filter), nil
}

func (s *Service) refreshListAsync(endpoint string, params map[string]string, fetch fetchFunc) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		businesses, err := fetch(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("background list refresh failed")
			return
		}
		s.cache.Set(ctx, endpoint, params, businesses)
	}()
}

func (s *Service) localList(ctx context.Context, filter models.BusinessFilter) ([]models.Business, error) {
	businesses, err := s.mirror.LocalBusinesses(ctx)
	if err != nil {
		return nil, err
	}
	return filterBusinesses(businesses, filter), nil
}

// mergePending overlays unconfirmed local writes on a confirmed list:
// pending edits replace their confirmed row, offline-created records are
// appended when they match the filter.
func (s *Service) mergePending(ctx context.Context, confirmed []models.Business, filter models.BusinessFilter) []models.Business {
	pending, err := s.mirror.PendingLocalBusinesses(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("loading pending businesses failed")
		return confirmed
	}
	if len(pending) == 0 {
		return confirmed
	}

	byID := make(map[string]int, len(confirmed))
	for i := range confirmed {
		byID[confirmed[i].ID] = i
	}
	merged := confirmed
	for _, p := range filterBusinesses(pending, filter) {
		if i, ok := byID[p.ID]; ok {
			merged[i] = p
			continue
		}
		merged = append(merged, p)
	}
	return merged
}
