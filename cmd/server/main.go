package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatrelay/internal/adapters/auth"
	router "github.com/dkeye/chatrelay/internal/adapters/http"
	"github.com/dkeye/chatrelay/internal/adapters/presence"
	wsignal "github.com/dkeye/chatrelay/internal/adapters/signal"
	"github.com/dkeye/chatrelay/internal/adapters/store"
	"github.com/dkeye/chatrelay/internal/adapters/uploads"
	"github.com/dkeye/chatrelay/internal/app"
	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/config"
	"github.com/dkeye/chatrelay/internal/core"
)

func initLogger(mode string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if mode == "debug" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// console output until the config says otherwise
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	initLogger(cfg.Mode)

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	users := store.NewUserStore(db)
	messages := store.NewMessageStore(db)
	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)

	var (
		presenceStore  core.PresenceStore
		presenceReader core.PresenceReader
	)
	switch cfg.Presence.Backend {
	case "db":
		s := store.NewPresenceStore(db)
		presenceStore, presenceReader = s, s
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable, presence updates will fail until it is")
		}
		s := presence.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
		presenceStore, presenceReader = s, s
	}

	conns := app.NewConnectionRegistry()
	calls := app.NewCallRooms()
	o := &orch.Orchestrator{
		Conns:    conns,
		Calls:    calls,
		Delivery: app.NewDelivery(conns, calls, app.PolicyFor(cfg.WS.Backpressure)),
		Auth:     &auth.Verifier{Tokens: tokens, Users: users},
		Messages: messages,
		Presence: presenceStore,
	}

	frameLimiter := wsignal.NewRateLimiter(cfg.RateLimit.FramesPerSecond, cfg.RateLimit.Burst, 2*time.Minute)
	defer frameLimiter.Stop()
	apiLimiter := wsignal.NewRateLimiter(5, 10, 2*time.Minute)
	defer apiLimiter.Stop()

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:         o,
		Auth:         &auth.Service{Users: users, Tokens: tokens},
		Users:        users,
		Rooms:        store.NewRoomStore(db),
		Messages:     messages,
		Directs:      store.NewDirectStore(db),
		CallRooms:    store.NewCallRoomStore(db),
		Uploads:      uploads.New(cfg.Uploads.Dir, cfg.Uploads.URLPrefix),
		Presence:     presenceReader,
		FrameLimiter: frameLimiter,
		APILimiter:   apiLimiter,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("chat relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
