package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JsotoSoftware/watch-party-backend/internal/sports"
)

func gamesKey(day string) string { return "games:" + day }

func (s *Storage) CachedGames(ctx context.Context, day string) ([]sports.Game, bool, error) {
	b, err := s.Redis.Get(ctx, gamesKey(day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var games []sports.Game
	if err := json.Unmarshal(b, &games); err != nil {
		return nil, false, fmt.Errorf("decode cached games: %w", err)
	}
	return games, true, nil
}

func (s *Storage) CacheGames(ctx context.Context, day string, games []sports.Game, ttl time.Duration) error {
	b, err := json.Marshal(games)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, gamesKey(day), b, ttl).Err()
}

var _ sports.Cache = (*Storage)(nil)

// AllowJoinAttempt counts join attempts per user in one-minute buckets.
// It bounds how fast one user can guess share codes.
func (s *Storage) AllowJoinAttempt(ctx context.Context, userID string, perMinute int) (bool, error) {
	if perMinute <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("join_attempts:%s:%d", userID, time.Now().Unix()/60)

	pipe := s.Redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(perMinute), nil
}
