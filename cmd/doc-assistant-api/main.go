// Package main provides the document assistant API server entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/doc-assistant/internal/config"
	"github.com/spherical/doc-assistant/internal/observability"
	"github.com/spherical/doc-assistant/internal/session"
	"github.com/spherical/doc-assistant/pkg/docassist"
)

func main() {
	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	assistant, err := docassist.NewWithConfig(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize assistant")
	}

	store := session.NewStore(cfg.Session.IdleTTL, logger)

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("vision_model", cfg.LLM.VisionModel).
		Str("chat_model", cfg.LLM.ChatModel).
		Dur("session_ttl", cfg.Session.IdleTTL).
		Msg("Starting document assistant API")

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      NewRouter(logger, cfg, store, assistant),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		store.RunJanitor(gctx, cfg.Session.SweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
			if err := srv.Close(); err != nil {
				logger.Error().Err(err).Msg("Forced shutdown failed")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}

	logger.Info().Msg("Server stopped")
}
