package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/demad/newsapp/internal/config"
	"github.com/demad/newsapp/internal/elasticsearch"
	"github.com/demad/newsapp/internal/logger"
	"github.com/demad/newsapp/internal/ratelimit"
)

type articleSearcher interface {
	Health(ctx context.Context) error
	SearchArticles(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

func main() {
	log := logger.New("api")
	if err := config.LoadDotEnv(); err != nil {
		log.Warn("load .env", slog.Any("err", err))
	}
	cfg, err := config.LoadAPI()
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

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	go limiter.Run(ctx)

	srv := &server{log: log, cfg: cfg, es: esClient}
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(limiter.Middleware),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log *slog.Logger
	cfg *config.API
	es  articleSearcher
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes(limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Get("/articles/search", s.handleSearch)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.es.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	start, err := parseTime(q.Get("start"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start: " + err.Error()})
		return
	}
	end, err := parseTime(q.Get("end"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end: " + err.Error()})
		return
	}
	if start != nil && end != nil && end.Before(*start) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end is before start"})
		return
	}

	params := elasticsearch.SearchParams{
		Query:   strings.TrimSpace(q.Get("q")),
		Section: strings.TrimSpace(q.Get("section")),
		Author:  strings.TrimSpace(q.Get("author")),
		From:    clampInt(q.Get("from"), 0, 10_000),
		Size:    clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:    strings.TrimSpace(q.Get("sort")),
		Start:   start,
		End:     end,
	}

	result, err := s.es.SearchArticles(ctx, params)
	if err != nil {
		s.log.Error("search articles", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts, nil
		}
	}
	return nil, errors.New("want RFC 3339 timestamp or YYYY-MM-DD")
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
