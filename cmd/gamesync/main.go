package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/JsotoSoftware/watch-party-backend/internal/sports"
	"github.com/JsotoSoftware/watch-party-backend/internal/storage"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		from     = flag.String("from", time.Now().UTC().Format(dateLayout), "first day to warm (YYYY-MM-DD)")
		days     = flag.Int("days", 3, "number of days to warm, starting at --from")
		dsn      = flag.String("dsn", os.Getenv("POSTGRES_DSN"), "postgres dsn")
		redis    = flag.String("redis", envOr("REDIS_ADDR", "localhost:6379"), "redis address")
		redisPwd = flag.String("redis-password", os.Getenv("REDIS_PASSWORD"), "redis password")
		api      = flag.String("api", os.Getenv("SPORTS_API_BASE_URL"), "sports API base url")
		key      = flag.String("key", os.Getenv("SPORTS_API_KEY"), "sports API key")
		ttl      = flag.Duration("ttl", 15*time.Minute, "how long warmed slates stay cached")
	)
	flag.Parse()

	if *dsn == "" || *api == "" {
		fmt.Println("usage: gamesync --dsn <postgres dsn> --api <sports api url> [--key k] [--from 2026-02-08] [--days 3] [--ttl 15m]")
		os.Exit(2)
	}

	start, err := time.Parse(dateLayout, *from)
	must(err)
	dates, err := dateRange(start, *days)
	must(err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := storage.New(ctx, *dsn, *redis, *redisPwd)
	must(err)
	defer st.Close()

	svc := sports.NewService(sports.NewClient(*api, *key, 10*time.Second), st, *ttl)

	failed := 0
	for _, d := range dates {
		games, err := svc.Refresh(ctx, d)
		if err != nil {
			failed++
			fmt.Printf("%s: failed: %v\n", d.Format(dateLayout), err)
			continue
		}
		fmt.Printf("%s: %s\n", d.Format(dateLayout), summarize(games))
	}

	if failed > 0 {
		fmt.Printf("Done with %d failed day(s).\n", failed)
		os.Exit(1)
	}
	fmt.Println("Done.")
}

func dateRange(start time.Time, days int) ([]time.Time, error) {
	if days < 1 || days > 31 {
		return nil, fmt.Errorf("days must be between 1 and 31, got %d", days)
	}
	out := make([]time.Time, days)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out, nil
}

func summarize(games []sports.Game) string {
	counts := map[sports.Status]int{}
	for _, g := range games {
		counts[g.Status]++
	}
	return fmt.Sprintf("%d games (%d scheduled, %d live, %d final)",
		len(games), counts[sports.StatusScheduled], counts[sports.StatusLive], counts[sports.StatusFinal])
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
