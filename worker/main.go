package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/demad/newsapp/internal/config"
	"github.com/demad/newsapp/internal/dedupe"
	"github.com/demad/newsapp/internal/elasticsearch"
	"github.com/demad/newsapp/internal/logger"
	"github.com/demad/newsapp/internal/queue"
)

func main() {
	log := logger.New("worker")
	if err := config.LoadDotEnv(); err != nil {
		log.Warn("load .env", slog.Any("err", err))
	}
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := queue.NewReader(queue.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaConsumer,
	})
	defer reader.Close()

	dlqTopic := queue.DeadLetterTopic(cfg.KafkaTopic)
	dlqWriter := queue.NewWriter(cfg.KafkaBrokers, dlqTopic)
	defer dlqWriter.Close()

	w := &worker{
		log:     log,
		cfg:     cfg,
		reader:  reader,
		indexer: esClient,
		dlq:     dlqWriter,
		seen:    dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL),
	}

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)
	if err := w.run(ctx); err != nil {
		log.Error("worker stopped", slog.Any("err", err))
		reader.Close()
		dlqWriter.Close()
		os.Exit(1)
	}
}
