package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"kbju/internal/amqp"
	"kbju/internal/backend"
	"kbju/internal/cli"
	"kbju/internal/config"
	applog "kbju/internal/log"
	"kbju/internal/storage"
	"kbju/internal/worker"
)

func main() {
	logger, cfg := cli.Setup()
	logger.Info("Starting kbju-worker")

	ctx, stop := cli.SignalContext(logger)
	err := run(ctx, logger, cfg)
	stop()
	if err != nil {
		logger.Error("kbju-worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("kbju-worker stopped")
}

// run backfills the journal and consumes entry events until ctx is
// cancelled. The repository and AMQP client are closed before it returns.
func run(ctx context.Context, logger *applog.Logger, cfg *config.Config) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the journal worker")
	}

	journalCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid journal configuration: %w", err)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("initialize SQLite repository at %s: %w", cfg.SQLiteDBPath, err)
	}
	defer repo.Close()

	journal, err := backend.NewFactory(logger).CreateJournal(ctx, journalCfg)
	if err != nil {
		return fmt.Errorf("initialize %s journal: %w", journalCfg.Type, err)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer amqpClient.Close()

	journalWorker := worker.NewJournalWorker(repo, journal.Journal, logger)

	// Recover entries whose messages were lost while the worker was down.
	logger.Info("Performing startup backfill", "days", cfg.JournalBackfillDays)
	if err := journalWorker.StartupBackfill(ctx, time.Now(), cfg.JournalBackfillDays); err != nil {
		logger.LogError(ctx, "Startup backfill failed", err, applog.OpStartup, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeEntryTracked(gctx, journalWorker.HandleEntryTracked)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("consume messages: %w", err)
	}
	return nil
}
