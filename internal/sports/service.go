package sports

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type Fetcher interface {
	ListGames(ctx context.Context, date time.Time) ([]Game, error)
	GetGame(ctx context.Context, id string) (Game, error)
}

// Cache stores game lists per calendar day. A miss is (nil, false, nil).
type Cache interface {
	CachedGames(ctx context.Context, day string) ([]Game, bool, error)
	CacheGames(ctx context.Context, day string, games []Game, ttl time.Duration) error
}

// Service is a read-through cache in front of the upstream API.
type Service struct {
	fetcher Fetcher
	cache   Cache
	ttl     time.Duration
}

func NewService(fetcher Fetcher, cache Cache, ttl time.Duration) *Service {
	return &Service{fetcher: fetcher, cache: cache, ttl: ttl}
}

func (s *Service) ListGames(ctx context.Context, date time.Time) ([]Game, error) {
	day := date.UTC().Format(time.DateOnly)

	if s.cache != nil {
		games, ok, err := s.cache.CachedGames(ctx, day)
		if err != nil {
			log.Warn().Err(err).Str("day", day).Msg("games cache read failed")
		} else if ok {
			return games, nil
		}
	}

	games, err := s.fetcher.ListGames(ctx, date)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.CacheGames(ctx, day, games, s.ttl); err != nil {
			log.Warn().Err(err).Str("day", day).Msg("games cache write failed")
		}
	}
	return games, nil
}

// Refresh fetches from upstream and overwrites the cached day.
func (s *Service) Refresh(ctx context.Context, date time.Time) ([]Game, error) {
	games, err := s.fetcher.ListGames(ctx, date)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.CacheGames(ctx, date.UTC().Format(time.DateOnly), games, s.ttl); err != nil {
			return nil, err
		}
	}
	return games, nil
}

// GetGame always goes upstream; a single game's status changes too often to cache.
func (s *Service) GetGame(ctx context.Context, id string) (Game, error) {
	return s.fetcher.GetGame(ctx, id)
}
