package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"kbju/internal/amqp"
	"kbju/internal/cache"
	"kbju/internal/cli"
	"kbju/internal/config"
	"kbju/internal/core"
	apphttp "kbju/internal/http"
	applog "kbju/internal/log"
	"kbju/internal/services"
	"kbju/internal/storage"
)

func main() {
	logger, cfg := cli.Setup()

	ctx, stop := cli.SignalContext(logger)
	err := run(ctx, logger, cfg)
	stop()
	if err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// run serves until ctx is cancelled or the server fails. Storage and AMQP
// connections are closed before it returns.
func run(ctx context.Context, logger *applog.Logger, cfg *config.Config) error {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("initialize SQLite repository at %s: %w", cfg.SQLiteDBPath, err)
	}

	opts := []services.Option{}

	// AMQP is optional: without it entries are not journaled.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, journal events disabled", "error", err)
		} else {
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, entries will not be journaled")
	}

	dayCache := cache.NewLRUCache[core.Macros](cfg.CacheSize, cfg.CacheTTL)
	opts = append(opts, services.WithDayCache(dayCache))

	diary := services.NewDiaryService(repo, logger, opts...)
	defer func() {
		if err := diary.Close(); err != nil {
			logger.Error("Failed to close diary service", "error", err)
		}
	}()

	srv, err := apphttp.NewServer(":"+cfg.Port, diary, logger, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})
	if err != nil {
		return fmt.Errorf("configure HTTP server: %w", err)
	}

	caches := cache.NewManager(logger)
	caches.Register(dayCache)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return caches.Run(gctx, time.Minute)
	})

	g.Go(func() error {
		logger.Info("Starting kbju server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.LogError(shutdownCtx, "Server shutdown error", err, applog.OpShutdown, nil)
			return err
		}
		return nil
	})

	return g.Wait()
}
