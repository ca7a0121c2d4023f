package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"monarch/internal/amqp"
	"monarch/internal/config"
	"monarch/internal/coordinator"
	"monarch/internal/core"
	apphttp "monarch/internal/http"
	"monarch/internal/log"
	"monarch/internal/monarch/api"
	"monarch/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	logger.Info("Starting monarchd")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	sessions, err := api.NewFileSessionStore(cfg.SessionFile)
	if err != nil {
		logger.Error("Failed to open session store", log.FieldError, err, "path", cfg.SessionFile)
		os.Exit(1)
	}

	client, err := api.New(cfg.MonarchBaseURL, sessions)
	if err != nil {
		logger.Error("Failed to initialize Monarch client", log.FieldError, err)
		os.Exit(1)
	}
	if !client.Authenticated() && cfg.MonarchEmail == "" {
		logger.Error("No saved session and no credentials configured; run monarch-login first")
		os.Exit(1)
	}

	opts := []coordinator.Option{coordinator.WithAuthenticator(client)}

	// SQLite persistence is optional; without it the history endpoints and
	// the exporter have nothing to read.
	var repo *storage.Repository
	if cfg.SQLiteDBPath != "" {
		repo, err = storage.NewRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		opts = append(opts, coordinator.WithPersister(repo))
		logger.Info("SQLite persistence enabled", "path", cfg.SQLiteDBPath)
	} else {
		logger.Info("SQLite persistence disabled - no SQLITE_DB_PATH provided")
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		opts = append(opts, coordinator.WithPublisher(amqpClient))
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP publishing disabled - no AMQP_URL provided")
	}

	// New snapshots invalidate cached history responses. The server is built
	// after the coordinator, so the hook goes through a pointer filled below.
	var srv *apphttp.Server
	opts = append(opts, coordinator.OnSnapshot(func(core.Snapshot) {
		if srv != nil {
			srv.InvalidateCaches()
		}
	}))

	coord := coordinator.New(coordinator.Config{
		Interval: cfg.ScanInterval,
		Timeout:  cfg.Timeout,
		Email:    cfg.MonarchEmail,
		Password: cfg.MonarchPassword,
	}, client, logger, opts...)

	var history apphttp.Historian
	if repo != nil {
		history = repo
	}
	srv = apphttp.NewServer(":"+cfg.Port, coord, history, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Poll loop exited", log.FieldError, err)
			cancel()
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting HTTP server",
		"port", cfg.Port, log.FieldInterval, cfg.ScanInterval.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
