package sports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	games []Game
	err   error
}

func (f *countingFetcher) ListGames(_ context.Context, _ time.Time) ([]Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.games, f.err
}

func (f *countingFetcher) GetGame(_ context.Context, id string) (Game, error) {
	for _, g := range f.games {
		if g.ID == id {
			return g, nil
		}
	}
	return Game{}, ErrGameNotFound
}

type memCache struct {
	days     map[string][]Game
	ttls     map[string]time.Duration
	failRead bool
}

func newMemCache() *memCache {
	return &memCache{days: map[string][]Game{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) CachedGames(_ context.Context, day string) ([]Game, bool, error) {
	if c.failRead {
		return nil, false, errors.New("redis down")
	}
	g, ok := c.days[day]
	return g, ok, nil
}

func (c *memCache) CacheGames(_ context.Context, day string, games []Game, ttl time.Duration) error {
	c.days[day] = games
	c.ttls[day] = ttl
	return nil
}

func TestService_ReadThrough(t *testing.T) {
	f := &countingFetcher{games: sampleGames()}
	cache := newMemCache()
	svc := NewService(f, cache, 30*time.Second)
	day := time.Date(2026, 10, 17, 23, 0, 0, 0, time.UTC)

	g1, err := svc.ListGames(context.Background(), day)
	require.NoError(t, err)
	g2, err := svc.ListGames(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, g1, g2)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 30*time.Second, cache.ttls["2026-10-17"])
}

func TestService_CacheReadErrorFallsBackToUpstream(t *testing.T) {
	f := &countingFetcher{games: sampleGames()}
	cache := newMemCache()
	cache.failRead = true
	svc := NewService(f, cache, time.Minute)

	games, err := svc.ListGames(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, games, 2)
	assert.Equal(t, 1, f.calls)
}

func TestService_UpstreamError(t *testing.T) {
	f := &countingFetcher{err: &APIError{StatusCode: 502}}
	svc := NewService(f, newMemCache(), time.Minute)

	_, err := svc.ListGames(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestService_RefreshOverwrites(t *testing.T) {
	f := &countingFetcher{games: sampleGames()}
	cache := newMemCache()
	svc := NewService(f, cache, time.Minute)
	day := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	cache.days["2026-10-17"] = []Game{}
	games, err := svc.Refresh(context.Background(), day)
	require.NoError(t, err)
	assert.Len(t, games, 2)
	assert.Len(t, cache.days["2026-10-17"], 2)
}

func TestService_NilCache(t *testing.T) {
	f := &countingFetcher{games: sampleGames()}
	svc := NewService(f, nil, time.Minute)

	_, err := svc.ListGames(context.Background(), time.Now())
	require.NoError(t, err)
	_, err = svc.ListGames(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)

	g, err := svc.GetGame(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", g.ID)
}
