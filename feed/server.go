package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/demad/newsapp/internal/feed"
	"github.com/demad/newsapp/internal/guardian"
	"github.com/demad/newsapp/internal/models"
)

const maxBodyBytes = 1 << 12

type server struct {
	log    *slog.Logger
	loader *feed.Loader
	// loads outlive the request that triggered them
	baseCtx context.Context
}

type errorResponse struct {
	Error string `json:"error"`
}

type preferencesResponse struct {
	Preferences models.Preferences `json:"preferences"`
	Reloading   bool               `json:"reloading"`
}

type reloadResponse struct {
	Generation uint64 `json:"generation"`
}

func newRouter(s *server, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Get("/articles", s.handleArticles)
		r.Delete("/articles", s.handleClearArticles)
		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)
		r.Post("/reload", s.handleReload)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	latest := s.loader.Latest()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"feed":       latest.Status,
		"generation": latest.Generation,
	})
}

func (s *server) handleArticles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.loader.Latest())
}

// handleClearArticles drops the held batch; loads still in flight are discarded.
func (s *server) handleClearArticles(w http.ResponseWriter, r *http.Request) {
	s.loader.Reset()
	s.log.Info("articles cleared", slog.String("request_id", middleware.GetReqID(r.Context())))
	writeJSON(w, http.StatusOK, s.loader.Latest())
}

func (s *server) handleGetPreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, preferencesResponse{Preferences: s.loader.Preferences()})
}

// handlePutPreferences merges the body over the current preferences; omitted
// fields keep their value.
func (s *server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var patch models.Preferences
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "decode preferences: " + err.Error()})
		return
	}

	prefs := s.loader.Preferences()
	if patch.ItemsPerPage != 0 {
		prefs.ItemsPerPage = patch.ItemsPerPage
	}
	if patch.TopicCategory != "" {
		prefs.TopicCategory = patch.TopicCategory
	}
	if err := guardian.ValidatePreferences(prefs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	reloading := s.loader.SetPreferences(s.baseCtx, prefs)
	status := http.StatusOK
	if reloading {
		status = http.StatusAccepted
	}
	writeJSON(w, status, preferencesResponse{Preferences: prefs, Reloading: reloading})
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	gen := s.loader.Reload(s.baseCtx)
	s.log.Info("reload requested",
		slog.Uint64("generation", gen),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, reloadResponse{Generation: gen})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
