package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/demad/newsapp/internal/config"
	"github.com/demad/newsapp/internal/elasticsearch"
	"github.com/demad/newsapp/internal/logger"
	"github.com/demad/newsapp/internal/schedule"
)

const (
	connectAttempts = 10
	runTimeout      = 2 * time.Minute
	maxConnectDelay = 30 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

type pruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

func main() {
	log := logger.New("retention")
	if err := config.LoadDotEnv(); err != nil {
		log.Warn("load .env", slog.Any("err", err))
	}
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	if err := waitForElasticsearch(ctx, log, esClient, connectAttempts, 2*time.Second); err != nil {
		log.Error("connect elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	scheduler, err := schedule.New(cfg.Schedule, func() { runOnce(ctx, log, esClient, cfg) }, log)
	if err != nil {
		log.Error("init retention schedule", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("retention job running",
		slog.String("schedule", scheduler.Spec()),
		slog.Duration("max_age", cfg.MaxAge),
	)

	runOnce(ctx, log, esClient, cfg)
	scheduler.Start()

	<-ctx.Done()
	log.Info("shutdown signal received")
	scheduler.Stop()
}

// waitForElasticsearch pings until the cluster answers, doubling the delay
// between attempts up to maxConnectDelay.
func waitForElasticsearch(ctx context.Context, log *slog.Logger, es pinger, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = es.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, maxConnectDelay)
	}
	return fmt.Errorf("elasticsearch unreachable after %d attempts: %w", attempts, err)
}

func runOnce(ctx context.Context, log *slog.Logger, es pruner, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	deleted, err := es.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next run)", slog.Any("err", err))
		return
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old articles found")
	}
}
