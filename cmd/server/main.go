package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdeck/internal/api"
	"github.com/eldtechnologies/chatdeck/internal/auth"
	"github.com/eldtechnologies/chatdeck/internal/config"
	"github.com/eldtechnologies/chatdeck/internal/crypto"
	"github.com/eldtechnologies/chatdeck/internal/realtime"
	"github.com/eldtechnologies/chatdeck/internal/store"
	"github.com/eldtechnologies/chatdeck/internal/telemetry"
)

// release is set at build time with -ldflags "-X main.release=...".
var release = "dev"

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	reporter, err := telemetry.NewReporter(logger, cfg.SentryDSN, cfg.Env, release, cfg.IsDevelopment())
	if err != nil {
		logger.Error().Err(err).Msg("sentry init failed, errors will only be logged")
		reporter = telemetry.Nop(logger)
	}
	defer reporter.Flush(2 * time.Second)

	analytics, err := telemetry.NewAnalytics(logger, cfg.PostHogKey, cfg.PostHogHost)
	if err != nil {
		logger.Error().Err(err).Msg("posthog init failed, analytics disabled")
		analytics = telemetry.NopAnalytics()
	}
	defer analytics.Close()

	// Persistent store: PostgreSQL when configured, SQLite otherwise
	var data store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		data = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite open failed")
		}
		data = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer data.Close()

	// Live store: Redis when configured, in-process otherwise
	var live store.LiveStore
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		live = redisStore
		redisClient = redisStore.Client()
		logger.Info().Msg("connected to Redis")
	} else {
		live = store.NewMemoryStore()
		logger.Warn().Msg("REDIS_URL not set, realtime events stay on this instance")
	}
	defer live.Close()

	signer, err := crypto.NewCSRFSigner(cfg.CSRFSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("csrf signer init failed")
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		// Gated routes answer 500 until the provider is configured
		logger.Error().Err(err).Str("provider", cfg.AuthProvider).Msg("auth provider init failed")
		verifier = nil
	}

	hub := realtime.NewHub(live, logger, cfg.AllowedOrigins)
	if err := hub.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("realtime hub failed to subscribe")
	}

	router := api.NewRouter(logger, api.Services{
		Config:    cfg,
		Data:      data,
		Live:      live,
		Hub:       hub,
		CSRF:      signer,
		Verifier:  verifier,
		Redis:     redisClient,
		Reporter:  reporter,
		Analytics: analytics,
	})

	// No write timeout: proxied completions and websockets are long-lived
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("auth", cfg.AuthProvider).
			Msg("starting chatdeck gateway")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	stop()

	logger.Info().Msg("server stopped")
}

// newVerifier builds the session verifier for the configured provider.
func newVerifier(cfg *config.Config) (auth.Verifier, error) {
	switch cfg.AuthProvider {
	case config.ProviderAuthJS:
		return auth.NewAuthJSVerifier(cfg.AuthSecret)
	default:
		return auth.NewClerkVerifier(cfg.ClerkJWTKey, cfg.ClerkAuthorizedParties)
	}
}
