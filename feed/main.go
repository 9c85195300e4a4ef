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

	"github.com/demad/newsapp/internal/config"
	"github.com/demad/newsapp/internal/dedupe"
	"github.com/demad/newsapp/internal/feed"
	"github.com/demad/newsapp/internal/guardian"
	"github.com/demad/newsapp/internal/logger"
	"github.com/demad/newsapp/internal/queue"
	"github.com/demad/newsapp/internal/ratelimit"
	"github.com/demad/newsapp/internal/schedule"
)

const publishTimeout = 10 * time.Second

func main() {
	log := logger.New("feed")
	if err := config.LoadDotEnv(); err != nil {
		log.Warn("load .env", slog.Any("err", err))
	}
	cfg, err := config.LoadFeed()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	client := newClient(cfg, log)
	loader := feed.NewLoader(client, cfg.Preferences, log, feed.WithConnectivity(connectivity(cfg)))

	var publisher *queue.Publisher
	if cfg.Publish {
		writer := queue.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher = queue.NewPublisher(writer, dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL), log)
		loader.OnResult(publishBatch(ctx, publisher, log))
		log.Info("publishing enabled", slog.String("topic", cfg.KafkaTopic))
	}

	scheduler, err := schedule.New(cfg.ReloadSchedule, func() { loader.Reload(ctx) }, log)
	if err != nil {
		log.Error("init reload schedule", slog.Any("err", err))
		os.Exit(1)
	}

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	go limiter.Run(ctx)

	srv := &server{log: log, loader: loader, baseCtx: ctx}
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           newRouter(srv, limiter.Middleware),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	loader.Reload(ctx)
	scheduler.Start()

	go func() {
		log.Info("feed server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("reload_schedule", scheduler.Spec()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}

	loader.Wait()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error("close kafka writer", slog.Any("err", err))
		}
	}
}

// newClient wires the content API client. With SkipMalformed set, a bad record
// is dropped instead of ending the batch.
func newClient(cfg *config.Feed, log *slog.Logger) *guardian.Client {
	var decodeOpts []guardian.DecodeOption
	if cfg.SkipMalformed {
		decodeOpts = append(decodeOpts, guardian.SkipMalformed())
	}
	return guardian.NewClient(cfg.APIKey, log,
		guardian.WithBaseURL(cfg.BaseURL),
		guardian.WithPreferences(cfg.Preferences),
		guardian.WithFetcher(guardian.NewFetcher(log)),
		guardian.WithParser(guardian.NewParser(log, decodeOpts...)),
	)
}

// connectivity probes ConnectivityAddr before each load; an empty address
// turns the probe off.
func connectivity(cfg *config.Feed) feed.Connectivity {
	if cfg.ConnectivityAddr == "" {
		return feed.AlwaysOnline{}
	}
	return feed.DialCheck{Addr: cfg.ConnectivityAddr}
}

// publishBatch forwards every non-empty batch to Kafka.
func publishBatch(ctx context.Context, p *queue.Publisher, log *slog.Logger) func(feed.Result) {
	return func(r feed.Result) {
		if r.Status != feed.StatusReady {
			return
		}
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		n, err := p.Publish(pubCtx, r.Articles)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("publish articles", slog.Uint64("generation", r.Generation), slog.Any("err", err))
			}
			return
		}
		log.Debug("batch published", slog.Uint64("generation", r.Generation), slog.Int("count", n))
	}
}
