package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adserve/adzone/internal/audit"
	"github.com/adserve/adzone/internal/config"
	"github.com/adserve/adzone/internal/infrastructure/postgres"
	"github.com/adserve/adzone/internal/infrastructure/rabbitmq"
	"github.com/adserve/adzone/internal/infrastructure/redis"
	"github.com/adserve/adzone/internal/media"
	"github.com/adserve/adzone/internal/pkg/logger"
	"github.com/adserve/adzone/internal/security"
	"github.com/adserve/adzone/internal/service"
	"github.com/adserve/adzone/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "adzone").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)
	if err := repo.EnsureSchema(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("schema apply failed")
	}

	// ---- Redis ----
	cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.CacheZoneTTL)
	defer cache.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()

		// serving works without redis, just slower
		if err := cache.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
	}

	// ---- Creative storage ----
	uploads, err := media.NewStore(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("creative storage init failed")
	}
	if err := uploads.EnsureBucket(rootCtx); err != nil {
		log.Warn().Err(err).Msg("creative bucket check failed (continuing)")
	}

	// ---- Application service ----
	svc := service.NewAdService(repo, cache, service.SystemClock(), audit.New(logger.Logger))
	h := rest.NewHandler(svc, uploads)

	verifier := security.NewHS256Verifier(cfg.JWTSecret, cfg.JWTIssuer)

	httpHandler := rest.NewRouter(rest.RouterDeps{
		Handler:         h,
		Verifier:        verifier,
		RateLimit:       cfg.RLLimit,
		RateLimitWindow: cfg.RLWindow,
	})

	// ---- Beacon consumer (inbound impressions/clicks from edge producers) ----
	if cfg.BeaconsEnabled {
		consumer := rabbitmq.NewBeaconConsumer(repo)
		if err := consumer.Start(rootCtx, cfg.RabbitURL, cfg.RabbitExchange); err != nil {
			log.Error().Err(err).Msg("beacon consumer start failed (continuing without broker ingest)")
		} else {
			log.Info().Msg("beacon consumer started")
		}
	}

	// ---- Outbox worker (outbound ad.*.recorded notifications) ----
	if cfg.OutboxEnabled {
		repo.StartOutboxWorker(rootCtx, cfg.RabbitURL, cfg.RabbitExchange)
		log.Info().Msg("outbox worker started")
	}

	// ---- Retention sweep ----
	if cfg.CleanupEnabled {
		repo.StartCleanupWorker(rootCtx, time.Hour, cfg.RetainSentFor, cfg.RetainInboxFor)
		log.Info().Msg("cleanup worker started")
	}

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
