package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/demad/newsapp/internal/config"
	"github.com/demad/newsapp/internal/dedupe"
	"github.com/demad/newsapp/internal/models"
	"github.com/demad/newsapp/internal/processing"
	"github.com/demad/newsapp/internal/queue"
)

const (
	dlqAttempts     = 5
	displayDate     = "Jan 2, 2006"
	maxRetryBackoff = 30 * time.Second
)

var (
	errEmptyArticle     = errors.New("article has neither title nor url")
	errDeadLetterFailed = errors.New("dead letter write failed")
)

type articleIndexer interface {
	IndexArticle(ctx context.Context, doc models.ArticleDocument) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type worker struct {
	log     *slog.Logger
	cfg     *config.Worker
	reader  messageReader
	indexer articleIndexer
	dlq     queue.MessageWriter
	seen    *dedupe.Cache
	now     func() time.Time
}

func (w *worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

// run consumes until ctx is cancelled. A message is committed once it is
// indexed, skipped as a duplicate, or parked on the DLQ. When the DLQ stays
// unreachable run returns errDeadLetterFailed without committing: group offsets
// are positional, so committing any later message would drop this one.
func (w *worker) run(ctx context.Context) error {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				w.log.Info("context canceled, stopping")
				return nil
			}
			w.log.Error("fetch message", slog.Any("err", err))
			if !sleep(ctx, w.cfg.RetryBackoff) {
				return nil
			}
			continue
		}

		if err := w.processWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !w.deadLetter(ctx, msg, err) {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: partition %d offset %d", errDeadLetterFailed, msg.Partition, msg.Offset)
			}
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			w.log.Error("commit message", slog.Any("err", err))
		}
	}
}

func (w *worker) processWithRetry(ctx context.Context, msg kafka.Message) error {
	var err error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if err = w.processMessage(ctx, msg); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return err
		}
		if attempt < w.cfg.MaxRetries && !sleep(ctx, backoff(w.cfg.RetryBackoff, attempt)) {
			return ctx.Err()
		}
	}
	return err
}

func (w *worker) deadLetter(ctx context.Context, msg kafka.Message, cause error) bool {
	dlqMsg := queue.DeadLetter(msg, cause, w.clock())
	for attempt := 0; attempt < dlqAttempts; attempt++ {
		err := w.dlq.WriteMessages(ctx, dlqMsg)
		if err == nil {
			w.log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}
		wait := backoff(w.cfg.RetryBackoff, attempt)
		w.log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
		)
		if !sleep(ctx, wait) {
			return false
		}
	}
	w.log.Error("DLQ write exhausted retries, stopping before later messages commit",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}

// permanentError marks a message that no retry can fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (w *worker) processMessage(ctx context.Context, msg kafka.Message) error {
	var article models.Article
	if err := json.Unmarshal(msg.Value, &article); err != nil {
		return &permanentError{fmt.Errorf("decode article: %w", err)}
	}

	doc, err := buildDocument(article, msg, w.cfg.KeywordLimit, w.cfg.KeywordMinLength, w.clock())
	if err != nil {
		return &permanentError{err}
	}

	if w.seen.IsSeen(doc.ID) {
		w.log.Debug("duplicate article", slog.String("id", doc.ID))
		return nil
	}
	if err := w.indexer.IndexArticle(ctx, doc); err != nil {
		return err
	}

	w.seen.MarkSeen(doc.ID)
	w.log.Info("indexed article", slog.String("id", doc.ID), slog.String("title", doc.Title))
	return nil
}

func buildDocument(a models.Article, msg kafka.Message, keywordLimit, minLen int, now time.Time) (models.ArticleDocument, error) {
	title := strings.TrimSpace(a.Title)
	link := strings.TrimSpace(a.URL)
	if title == "" && link == "" {
		return models.ArticleDocument{}, errEmptyArticle
	}

	id := string(msg.Key)
	if id == "" {
		id = processing.BuildArticleID(link)
	}
	if id == "" {
		id = uuid.NewString()
	}

	var author string
	if a.Author != nil {
		author = strings.TrimSpace(*a.Author)
	}
	section := strings.TrimSpace(a.SectionName)

	return models.ArticleDocument{
		ID:          id,
		Title:       title,
		Section:     section,
		Author:      author,
		URL:         link,
		PublishedAt: publishedAt(a, msg.Time, now),
		Keywords:    processing.ExtractKeywords(title+" "+section, keywordLimit, minLen),
		FetchedAt:   now.UTC(),
	}, nil
}

// publishedAt prefers the exact timestamp, then the display date, then the
// time the message was produced.
func publishedAt(a models.Article, produced, now time.Time) time.Time {
	if !a.PublishedAt.IsZero() {
		return a.PublishedAt.UTC()
	}
	if ts, err := time.Parse(displayDate, strings.TrimSpace(a.PublishedDate)); err == nil {
		return ts
	}
	if !produced.IsZero() {
		return produced.UTC()
	}
	return now.UTC()
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt)
	if d <= 0 || d > maxRetryBackoff {
		return maxRetryBackoff
	}
	return d
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
