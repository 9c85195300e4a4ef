package feed

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/demad/newsapp/internal/models"
)

// Status describes what the latest load produced.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusEmpty   Status = "empty"
	StatusOffline Status = "offline"
)

// Message returns the empty-state text shown for s.
func (s Status) Message() string {
	switch s {
	case StatusEmpty:
		return "No news found."
	case StatusOffline:
		return "No internet connection."
	default:
		return ""
	}
}

// Source runs one fetch cycle. Failures come back as an empty slice.
type Source interface {
	Load(ctx context.Context, prefs models.Preferences) []models.Article
}

// Connectivity reports whether the network path to the API is up.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Result is the outcome of one load.
type Result struct {
	Generation  uint64             `json:"generation"`
	Status      Status             `json:"status"`
	Message     string             `json:"message,omitempty"`
	Preferences models.Preferences `json:"preferences"`
	Articles    []models.Article   `json:"articles"`
	LoadedAt    time.Time          `json:"loadedAt"`
}

// Loader runs background fetch cycles and keeps the latest batch. Each trigger
// supersedes the previous one: a result from an older generation is dropped
// when it arrives.
type Loader struct {
	source Source
	conn   Connectivity
	log    *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	prefs      models.Preferences
	generation uint64
	latest     Result
	listeners  []func(Result)

	wg sync.WaitGroup
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConnectivity installs a pre-load connectivity check.
func WithConnectivity(c Connectivity) LoaderOption {
	return func(l *Loader) {
		l.conn = c
	}
}

// WithClock overrides time.Now (for testing).
func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		l.now = now
	}
}

// NewLoader creates a Loader that starts from prefs.
func NewLoader(source Source, prefs models.Preferences, log *slog.Logger, opts ...LoaderOption) *Loader {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Loader{
		source: source,
		log:    log,
		now:    time.Now,
		prefs:  prefs,
		latest: Result{Status: StatusLoading, Preferences: prefs, Articles: []models.Article{}},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnResult registers fn to receive every current result. Callbacks run on the
// loading goroutine.
func (l *Loader) OnResult(fn func(Result)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Reload starts a new load with the current preferences and returns its generation.
func (l *Loader) Reload(ctx context.Context) uint64 {
	l.mu.Lock()
	l.generation++
	gen, prefs := l.generation, l.prefs
	l.mu.Unlock()

	l.start(ctx, gen, prefs)
	return gen
}

// SetPreferences records prefs and reloads when the page size or topic changed.
// It reports whether a reload was started.
func (l *Loader) SetPreferences(ctx context.Context, prefs models.Preferences) bool {
	l.mu.Lock()
	if prefs == l.prefs {
		l.mu.Unlock()
		return false
	}
	l.prefs = prefs
	l.generation++
	gen := l.generation
	// The list is cleared while the new query runs.
	l.latest = Result{Generation: gen, Status: StatusLoading, Preferences: prefs, Articles: []models.Article{}}
	l.mu.Unlock()

	l.log.Info("preferences changed, reloading",
		slog.Int("items_per_page", prefs.ItemsPerPage),
		slog.String("topic_category", prefs.TopicCategory),
	)
	l.start(ctx, gen, prefs)
	return true
}

// Preferences returns the current preferences.
func (l *Loader) Preferences() models.Preferences {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prefs
}

// Latest returns a copy of the newest delivered result.
func (l *Loader) Latest() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.latest
	out.Articles = append([]models.Article(nil), l.latest.Articles...)
	if out.Articles == nil {
		out.Articles = []models.Article{}
	}
	return out
}

// Reset clears the held batch and invalidates loads still in flight.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.latest = Result{Generation: l.generation, Status: StatusLoading, Preferences: l.prefs, Articles: []models.Article{}}
}

// Wait blocks until every started load has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

func (l *Loader) start(ctx context.Context, gen uint64, prefs models.Preferences) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		if l.conn != nil && !l.conn.Online(ctx) {
			l.log.Warn("no network connection, skipping load", slog.Uint64("generation", gen))
			l.deliver(Result{
				Generation:  gen,
				Status:      StatusOffline,
				Preferences: prefs,
				Articles:    []models.Article{},
				LoadedAt:    l.now(),
			})
			return
		}

		articles := l.source.Load(ctx, prefs)
		status := StatusReady
		if len(articles) == 0 {
			status = StatusEmpty
		}
		l.deliver(Result{
			Generation:  gen,
			Status:      status,
			Preferences: prefs,
			Articles:    articles,
			LoadedAt:    l.now(),
		})
	}()
}

func (l *Loader) deliver(r Result) {
	r.Message = r.Status.Message()
	if r.Articles == nil {
		r.Articles = []models.Article{}
	}

	l.mu.Lock()
	if r.Generation != l.generation {
		current := l.generation
		l.mu.Unlock()
		l.log.Debug("discarding stale load",
			slog.Uint64("generation", r.Generation),
			slog.Uint64("current", current),
		)
		return
	}
	l.latest = r
	listeners := slices.Clone(l.listeners)
	l.mu.Unlock()

	l.log.Info("load finished",
		slog.Uint64("generation", r.Generation),
		slog.String("status", string(r.Status)),
		slog.Int("articles", len(r.Articles)),
	)
	for _, fn := range listeners {
		fn(r)
	}
}
