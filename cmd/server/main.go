// Command server runs the insight backend HTTP API.
//
// It loads configuration from the environment (optionally via a local .env
// file), opens the SQLite profile store, picks a device-cache backend (Redis
// when REDIS_ADDR is set, in-memory otherwise), configures tracing, and
// serves the REST API until interrupted.
//
// @title        Insight Backend API
// @version      1.0
// @description  Generates one contextual insight per scanned expense transaction.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-insight-backend/internal/cachestore"
	"github.com/tbourn/go-insight-backend/internal/config"
	httpapi "github.com/tbourn/go-insight-backend/internal/http"
	"github.com/tbourn/go-insight-backend/internal/observability"
	"github.com/tbourn/go-insight-backend/internal/repo"
	"github.com/tbourn/go-insight-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open sqlite")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	// Device cache: Redis when configured, in-memory otherwise. A Redis that
	// is configured but unreachable is a startup error rather than a silent
	// downgrade.
	var cache cachestore.Store
	if cfg.RedisAddr != "" {
		rc, err := cachestore.NewRedis(cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect redis")
		}
		cache = rc
		log.Info().Str("addr", cfg.RedisAddr).Msg("device cache: redis")
	} else {
		cache = cachestore.NewMemory()
		log.Info().Msg("device cache: in-memory")
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Warn().Err(err).Msg("close cache store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("shutdown tracing")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cache, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
