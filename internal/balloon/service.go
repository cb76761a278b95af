package balloon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads balloon histories.
type Fetcher interface {
	FetchHistory(ctx context.Context) ([]History, error)
}

// ServiceConfig holds configuration for the balloon service.
type ServiceConfig struct {
	Fetcher Fetcher

	// CacheTTL is how long fetched histories are served without refetching.
	// Default: 10 minutes
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving the last histories when a refetch fails.
	// Default: 1 hour
	StaleIfErrorTTL time.Duration

	Logger zerolog.Logger
}

// Service serves cached balloon histories. Concurrent misses share one fetch.
type Service struct {
	fetcher         Fetcher
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration
	logger          zerolog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	cached    []History
	fetchedAt time.Time
}

// NewService creates a new balloon service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = time.Hour
	}

	return &Service{
		fetcher:         cfg.Fetcher,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		logger:          cfg.Logger,
	}
}

// Histories returns cached histories, refetching once they expire. The returned slice is
// shared and must not be modified.
func (s *Service) Histories(ctx context.Context) ([]History, error) {
	s.mu.RLock()
	cached, fetchedAt := s.cached, s.fetchedAt
	s.mu.RUnlock()

	if cached != nil && time.Since(fetchedAt) < s.cacheTTL {
		return cached, nil
	}

	v, err, _ := s.group.Do("histories", func() (any, error) {
		return s.fetcher.FetchHistory(context.WithoutCancel(ctx))
	})
	if err != nil {
		if cached != nil && time.Since(fetchedAt) < s.staleIfErrorTTL {
			s.logger.Warn().Err(err).Msg("serving stale balloon histories")
			return cached, nil
		}
		return nil, err
	}

	histories := v.([]History)
	s.mu.Lock()
	s.cached = histories
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	return histories, nil
}
