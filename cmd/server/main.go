package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JsotoSoftware/watch-party-backend/internal/auth"
	"github.com/JsotoSoftware/watch-party-backend/internal/config"
	httphandler "github.com/JsotoSoftware/watch-party-backend/internal/http"
	"github.com/JsotoSoftware/watch-party-backend/internal/sports"
	"github.com/JsotoSoftware/watch-party-backend/internal/storage"
	"github.com/JsotoSoftware/watch-party-backend/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown LOG_LEVEL, using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx := context.Background()

	st, err := storage.New(ctx, cfg.PostgresDSN, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init storage")
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	tokens, err := auth.NewTokenMaker(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init token maker")
	}

	games := sports.NewService(
		sports.NewClient(cfg.SportsAPIBaseURL, cfg.SportsAPIKey, cfg.SportsAPITimeout),
		st,
		cfg.GamesCacheTTL,
	)

	hub := ws.NewHub()
	stopSweeper := ws.StartSweeper(hub, ws.SweeperConfig{
		ConnIdleTimeout: cfg.WSConnIdleTimeout,
		RoomIdleTimeout: cfg.WSRoomIdleTimeout,
		Tick:            cfg.WSSweepInterval,
	})
	defer stopSweeper()

	var origins []string
	if !cfg.IsDev() {
		origins = []string{hostOf(cfg.PublicBaseURL)}
	}
	wsHandler := ws.NewHandler(hub, st, tokens, origins)

	r := httphandler.NewRouter(httphandler.RouterConfig{
		Store:          st,
		Tokens:         tokens,
		Games:          games,
		WSHandler:      wsHandler,
		Closer:         hub,
		CookieSecure:   cfg.CookieSecure,
		CookieDomain:   cfg.CookieDomain,
		PublicBaseURL:  cfg.PublicBaseURL,
		AdminUserIDs:   cfg.AdminUserIDs,
		JoinsPerMinute: cfg.JoinAttemptsPerMinute,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.AppEnv).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	log.Info().Msg("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("bye")
}

// hostOf returns the host[:port] part of a URL, which is what websocket
// origin patterns match against.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
