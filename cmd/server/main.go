package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/gather/internal/adapters/auth"
	"github.com/dkeye/gather/internal/adapters/feed"
	router "github.com/dkeye/gather/internal/adapters/http"
	wsignal "github.com/dkeye/gather/internal/adapters/signal"
	"github.com/dkeye/gather/internal/adapters/storage/sqlite"
	"github.com/dkeye/gather/internal/app"
	"github.com/dkeye/gather/internal/app/orch"
	"github.com/dkeye/gather/internal/app/telemetry"
	"github.com/dkeye/gather/internal/config"
	"github.com/dkeye/gather/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	m := metrics.New()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cache := telemetry.NewCache(rdb, cfg.Telemetry.ProbeInterval)
	cache.OnError = m.TelemetryError
	defer cache.Close()

	o := orch.New(app.NewRegistry(), store, store)
	o.Metrics = m
	o.Telemetry = telemetry.NewServices(cache)
	o.MaxPlayers = cfg.MaxPlayersPerSpace
	o.TelemetryTimeout = cfg.Telemetry.Timeout
	defer o.Close()

	if cfg.NATS.URL != "" {
		consumer, err := feed.Connect(cfg.NATS.URL, cfg.NATS.Subject, o)
		if err != nil {
			return fmt.Errorf("connect change feed: %w", err)
		}
		defer consumer.Close()
		if err := consumer.Start(); err != nil {
			return fmt.Errorf("start change feed: %w", err)
		}
	} else {
		log.Warn().Str("module", "main").Msg("nats.url is empty, space changes will not end sessions")
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	ctl := wsignal.NewSignalWSController(o, verifier, store, wsignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	connCtx, stopConns := context.WithCancel(ctx)
	defer stopConns()
	r := router.SetupRouter(connCtx, cfg, router.Deps{
		Orch:           o,
		Signal:         ctl,
		Verifier:       verifier,
		TelemetryReady: cache.Ready,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("gather server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		cache.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	err = g.Wait()
	stopConns()
	ctl.Wait()
	return err
}
