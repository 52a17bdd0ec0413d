package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/api/handlers"
	"github.com/dvloznov/ledger-assistant/internal/app"
	"github.com/dvloznov/ledger-assistant/internal/config"
	"github.com/dvloznov/ledger-assistant/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-assistant/internal/logger"
)

func main() {
	cfg := config.Load()

	// Initialize logger
	log := logger.Setup(cfg.LogLevel, logger.Format(cfg.LogFormat), os.Stdout)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LedgerPath).Msg("Failed to start ledger")
	}
	defer a.Close()

	log.Info().Str("path", cfg.LedgerPath).Int("records", a.Store.Len()).Msg("Ledger loaded")

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{
		BufferSize: cfg.JobBuffer,
		Workers:    cfg.JobWorkers,
	}, jobStore, log)

	// Start worker in background to process mirror jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, a.Runner.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job queue")
	}

	handler := handlers.NewRouter(handlers.Deps{
		Store:      a.Store,
		Dispatcher: a.Dispatcher,
		Assistant:  a.Assistant,
		JobStore:   jobStore,
		Publisher:  jobQueue,
		Runner:     a.Runner,
		Log:        log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight mirrors
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
