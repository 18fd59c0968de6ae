package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nzvengeance/launch-shelf/internal/api"
	"github.com/nzvengeance/launch-shelf/internal/app"
	"github.com/nzvengeance/launch-shelf/internal/config"
	syncsvc "github.com/nzvengeance/launch-shelf/internal/sync"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	log.Info().Msg("Launch Shelf starting up")

	// Load config
	cfg := config.Load()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Open the tab: store, channel, managers
	a, err := app.Open(context.Background(), cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer a.Close()

	// Sync history is only kept with a SQL database
	var history syncsvc.History
	var historyReader api.SyncHistory
	if a.DB != nil {
		history = a.DB
		historyReader = a.DB
	}

	// Create sync scheduler
	scheduler := syncsvc.NewScheduler(a.Ledger, history, cfg)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer scheduler.Stop()

	// Create API server
	srv := api.NewServer(a.Ledger, historyReader, cfg, scheduler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Info().Str("port", cfg.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("Launch Shelf stopped")
}
