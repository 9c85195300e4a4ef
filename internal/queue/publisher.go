package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/demad/newsapp/internal/dedupe"
	"github.com/demad/newsapp/internal/models"
	"github.com/demad/newsapp/internal/processing"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends freshly loaded articles to Kafka, skipping ones already sent
// inside the dedupe window.
type Publisher struct {
	writer MessageWriter
	seen   *dedupe.Cache
	log    *slog.Logger
	now    func() time.Time
}

// NewWriter builds a synchronous writer keyed by article ID.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
	}
}

// NewPublisher wraps writer. A nil seen cache disables deduplication.
func NewPublisher(writer MessageWriter, seen *dedupe.Cache, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{writer: writer, seen: seen, log: log, now: time.Now}
}

// Publish writes one message per article not published recently and returns
// how many were sent.
func (p *Publisher) Publish(ctx context.Context, articles []models.Article) (int, error) {
	byID := make(map[string]models.Article, len(articles))
	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		id := processing.BuildArticleID(a.URL)
		if id == "" {
			p.log.Debug("skip article without url", slog.String("title", a.Title))
			continue
		}
		if _, dup := byID[id]; dup {
			continue
		}
		if p.seen != nil && p.seen.IsSeen(id) {
			continue
		}
		byID[id] = a
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(ids))
	for _, id := range ids {
		value, err := json.Marshal(byID[id])
		if err != nil {
			return 0, fmt.Errorf("marshal article: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(id), Value: value, Time: p.now()})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("write messages: %w", err)
	}
	if p.seen != nil {
		for _, id := range ids {
			p.seen.MarkSeen(id)
		}
	}
	p.log.Info("published articles", slog.Int("count", len(msgs)))
	return len(msgs), nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
