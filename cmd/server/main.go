// Command server runs the WhatsApp chat-management backend: the inbound
// message webhook, the intake pipeline, and the dashboard API.
//
// Configuration comes from the environment (optionally a .env file). Missing
// required credentials (webhook verify token, AI API key) abort startup; the
// process never serves requests half-configured.
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
	"github.com/rs/zerolog/log"

	_ "github.com/voltworx/wa-chat-backend/docs"
	"github.com/voltworx/wa-chat-backend/internal/ai"
	"github.com/voltworx/wa-chat-backend/internal/config"
	httpapi "github.com/voltworx/wa-chat-backend/internal/http"
	"github.com/voltworx/wa-chat-backend/internal/observability"
	"github.com/voltworx/wa-chat-backend/internal/outbound"
	"github.com/voltworx/wa-chat-backend/internal/repo"
	"github.com/voltworx/wa-chat-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is a development convenience; absence is not an error.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	// Tracing (no-op unless OTEL_ENABLED).
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Storage.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin failed, continuing untraced")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	// AI collaborator. The API key was validated by config.Load.
	aiClient, err := ai.NewClient(ctx, cfg.AI.APIKey, cfg.AI.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("ai client init failed")
	}
	defer func() {
		if err := aiClient.Close(); err != nil {
			log.Warn().Err(err).Msg("ai client close")
		}
	}()

	// Outbound channel: logging stub until a real sender is configured.
	deliverer := outbound.NewLogDeliverer(log.With().Str("component", "outbound").Logger())

	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Deps{
		AI:        aiClient,
		Deliverer: deliverer,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	log.Info().
		Str("version", version).
		Str("addr", srv.Addr).
		Str("api_base", cfg.APIBasePath).
		Msg("server starting")

	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

// runServer serves until the context is cancelled, then drains in-flight
// requests with a bounded shutdown.
func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
