package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgexpo/voicegateway/internal/config"
	"github.com/edgexpo/voicegateway/internal/gateway"
	"github.com/edgexpo/voicegateway/internal/server"
)

const preloadTimeout = 2 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"stt_url", cfg.Services.STT.URL,
		"tts_url", cfg.Services.TTS.URL,
		"embedding_url", cfg.Services.Embedding.URL,
		"llm_url", cfg.Services.LLM.URL,
		"crm_backend", cfg.CRM.Backend,
	)

	services := gateway.New(cfg, logger)
	defer services.Close()

	// Index the knowledge base in the background; queries wait on it
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
		defer cancel()
		services.Preload(ctx)
	}()

	srv := server.New(cfg, services, logger)

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	go func() {
		serverErrors <- srv.Start()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			services.Close()
			os.Exit(1)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig)

		// Give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}

		if removed, err := services.TTS.CleanupTempFiles(); err != nil {
			logger.Warn("failed to clean synthesized audio", "error", err)
		} else if removed > 0 {
			logger.Info("removed synthesized audio", "files", removed)
		}

		logger.Info("server stopped")
	}
}
