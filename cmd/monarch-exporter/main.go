package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"monarch/internal/amqp"
	"monarch/internal/config"
	gsheet "monarch/internal/export/google"
	"monarch/internal/log"
	"monarch/internal/storage"
	"monarch/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	logger.Info("Starting monarch-exporter")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.SQLiteDBPath == "" {
		logger.Error("Exporter requires SQLITE_DB_PATH")
		os.Exit(1)
	}
	if !cfg.ExportEnabled() {
		logger.Error("Exporter requires GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	exportWorker := worker.NewExportWorker(repo, sheetsClient, logger,
		cfg.ExportBatchSize, cfg.HistoryRetention)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// On startup, requeue errored rows and drain anything missed while the
	// exporter was down.
	if err := exportWorker.StartupExportCheck(ctx); err != nil {
		logger.Error("Startup export check failed", log.FieldError, err)
		// Don't exit - the periodic pass retries.
	}

	// AMQP consumption is optional; without it the exporter runs purely on
	// the periodic pending-export pass.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			err := amqpClient.ConsumeSnapshots(ctx, func(msg *amqp.SnapshotMessage) error {
				return exportWorker.HandleSnapshotMessage(ctx, msg)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
				cancel()
			}
		}()
		logger.Info("Consuming snapshot messages", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP consumption disabled - no AMQP_URL provided")
	}

	go exportWorker.RunMaintenance(ctx, cfg.ExportInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()

	// Give in-flight exports a moment to finish.
	logger.Info("Shutting down exporter...")
	time.Sleep(2 * time.Second)
	logger.Info("Exporter shutdown complete")
}
