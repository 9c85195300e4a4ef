package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/demad/newsapp/internal/config"
	"github.com/demad/newsapp/internal/dedupe"
	"github.com/demad/newsapp/internal/logger"
	"github.com/demad/newsapp/internal/models"
	"github.com/demad/newsapp/internal/processing"
)

type stubIndexer struct {
	docs     []models.ArticleDocument
	failures int
}

func (s *stubIndexer) IndexArticle(_ context.Context, doc models.ArticleDocument) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("es unavailable")
	}
	s.docs = append(s.docs, doc)
	return nil
}

// fakeReader hands out msgs, then cancels the run.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type fakeDLQ struct {
	msgs     []kafka.Message
	failures int
}

func (d *fakeDLQ) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if d.failures > 0 {
		d.failures--
		return errors.New("broker down")
	}
	d.msgs = append(d.msgs, msgs...)
	return nil
}

func (d *fakeDLQ) Close() error { return nil }

func testConfig() *config.Worker {
	return &config.Worker{
		Common:           config.Common{ElasticsearchAddr: "http://test", ElasticsearchIndex: "articles"},
		KeywordLimit:     5,
		KeywordMinLength: 3,
		MaxRetries:       2,
		RetryBackoff:     time.Millisecond,
	}
}

func newTestWorker(idx *stubIndexer, dlq *fakeDLQ) *worker {
	return &worker{
		log:     logger.Discard(),
		cfg:     testConfig(),
		indexer: idx,
		dlq:     dlq,
		seen:    dedupe.NewCache(100, time.Hour),
		now:     func() time.Time { return time.Date(2023, 5, 2, 8, 0, 0, 0, time.UTC) },
	}
}

func articleMessage(t *testing.T, offset int64, a models.Article) kafka.Message {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(processing.BuildArticleID(a.URL)), Value: data, Offset: offset}
}

func TestProcessMessageIndexesDocument(t *testing.T) {
	idx := &stubIndexer{}
	w := newTestWorker(idx, &fakeDLQ{})
	author := "Jane Doe. "
	msg := articleMessage(t, 1, models.Article{
		Title:         "Budget vote delayed again",
		SectionName:   "Politics",
		PublishedDate: "May 1, 2023",
		Author:        &author,
		URL:           "https://www.theguardian.com/politics/budget",
		PublishedAt:   time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC),
	})

	require.NoError(t, w.processMessage(context.Background(), msg))
	require.Len(t, idx.docs, 1)

	doc := idx.docs[0]
	require.Equal(t, processing.BuildArticleID("https://www.theguardian.com/politics/budget"), doc.ID)
	require.Equal(t, "Politics", doc.Section)
	require.Equal(t, "Jane Doe.", doc.Author)
	require.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), doc.PublishedAt)
	require.Equal(t, time.Date(2023, 5, 2, 8, 0, 0, 0, time.UTC), doc.FetchedAt)
	require.Contains(t, doc.Keywords, "budget")

	require.NoError(t, w.processMessage(context.Background(), msg))
	require.Len(t, idx.docs, 1)
}

func TestBuildDocumentFallbacks(t *testing.T) {
	now := time.Date(2023, 5, 2, 8, 0, 0, 0, time.UTC)

	doc, err := buildDocument(models.Article{Title: "Only a title", PublishedDate: "Apr 30, 2023"}, kafka.Message{}, 5, 3, now)
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	require.Empty(t, doc.Author)
	require.Equal(t, time.Date(2023, 4, 30, 0, 0, 0, 0, time.UTC), doc.PublishedAt)

	produced := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	doc, err = buildDocument(models.Article{URL: "https://g.com/a"}, kafka.Message{Time: produced}, 5, 3, now)
	require.NoError(t, err)
	require.Equal(t, processing.BuildArticleID("https://g.com/a"), doc.ID)
	require.Equal(t, produced, doc.PublishedAt)

	_, err = buildDocument(models.Article{SectionName: "Sport"}, kafka.Message{}, 5, 3, now)
	require.ErrorIs(t, err, errEmptyArticle)
}

func TestRunRetriesThenCommits(t *testing.T) {
	idx := &stubIndexer{failures: 2}
	dlq := &fakeDLQ{}
	w := newTestWorker(idx, dlq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		articleMessage(t, 7, models.Article{Title: "a", URL: "https://g.com/a"}),
	}}
	w.reader = reader

	require.NoError(t, w.run(ctx))
	require.Len(t, idx.docs, 1)
	require.Empty(t, dlq.msgs)
	require.Equal(t, []int64{7}, reader.committed)
}

func TestRunSendsPoisonMessagesToDLQ(t *testing.T) {
	idx := &stubIndexer{}
	dlq := &fakeDLQ{failures: 1}
	w := newTestWorker(idx, dlq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Value: []byte("not json"), Offset: 3},
		articleMessage(t, 4, models.Article{SectionName: "Sport"}),
		articleMessage(t, 5, models.Article{Title: "ok", URL: "https://g.com/ok"}),
	}}
	w.reader = reader

	require.NoError(t, w.run(ctx))
	require.Len(t, dlq.msgs, 2)
	require.Len(t, idx.docs, 1)
	require.Equal(t, []int64{3, 4, 5}, reader.committed)

	headers := map[string]string{}
	for _, h := range dlq.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "3", headers["original_offset"])
	require.Contains(t, headers["error"], "decode article")
}

func TestRunExhaustedIndexRetriesGoToDLQ(t *testing.T) {
	idx := &stubIndexer{failures: 10}
	dlq := &fakeDLQ{}
	w := newTestWorker(idx, dlq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		articleMessage(t, 9, models.Article{Title: "a", URL: "https://g.com/a"}),
	}}
	w.reader = reader

	require.NoError(t, w.run(ctx))
	require.Equal(t, 7, idx.failures)
	require.Len(t, dlq.msgs, 1)
	require.Equal(t, []int64{9}, reader.committed)
}

func TestRunStopsWhenDLQUnavailable(t *testing.T) {
	idx := &stubIndexer{}
	dlq := &fakeDLQ{failures: dlqAttempts}
	w := newTestWorker(idx, dlq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		articleMessage(t, 1, models.Article{Title: "first", URL: "https://g.com/first"}),
		{Value: []byte("not json"), Offset: 2},
		articleMessage(t, 3, models.Article{Title: "later", URL: "https://g.com/later"}),
	}}
	w.reader = reader

	err := w.run(ctx)
	require.ErrorIs(t, err, errDeadLetterFailed)
	require.ErrorContains(t, err, "offset 2")
	require.Equal(t, []int64{1}, reader.committed)
	require.Len(t, idx.docs, 1)
	require.Empty(t, dlq.msgs)
	require.Len(t, reader.msgs, 1)
}

func TestBackoff(t *testing.T) {
	require.Equal(t, 100*time.Millisecond, backoff(100*time.Millisecond, 0))
	require.Equal(t, 400*time.Millisecond, backoff(100*time.Millisecond, 2))
	require.Equal(t, maxRetryBackoff, backoff(time.Second, 10))
	require.Equal(t, time.Second, backoff(0, 0))
}
