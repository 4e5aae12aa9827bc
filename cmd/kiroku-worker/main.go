// kiroku-worker consumes session lifecycle events and archives finalized
// sessions to a Google Sheets spreadsheet.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kiroku/internal/amqp"
	"kiroku/internal/config"
	"kiroku/internal/export"
	gsheet "kiroku/internal/export/google"
	expmem "kiroku/internal/export/memory"
	"kiroku/internal/store"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting kiroku-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	var writer export.RowWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = expmem.New()
		logger.Info("Google Sheets disabled - archiving in memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rows are weighted with the default drink weights; per-user weights
	// live in the main service's store, which the worker does not reach.
	weights := store.DefaultPreferences().DrinksToUnits

	handler := func(event *amqp.SessionEvent) error {
		if event.Kind != amqp.EventSessionFinalized || event.Session == nil {
			// Deleted events carry nothing to archive.
			return nil
		}
		row := export.NewRow(event.UserID, *event.Session, weights)
		ref, err := writer.Append(ctx, row)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Archived session",
			"user_id", event.UserID,
			"session_id", event.SessionID,
			"ref", ref)
		return nil
	}

	if err := amqpClient.ConsumeSessionEvents(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}
