// Package api exposes the HTTP interface: country reads, on-demand refresh
// and health/metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atlasforge/worldstat-crawler/internal/clock"
	"github.com/atlasforge/worldstat-crawler/internal/dataset"
	"github.com/atlasforge/worldstat-crawler/internal/merge"
	"github.com/atlasforge/worldstat-crawler/internal/metrics"
	"github.com/atlasforge/worldstat-crawler/internal/source"
)

const (
	// ScopeAll refreshes every registered source before merging.
	ScopeAll = "all"

	readTimeout    = 60 * time.Second
	refreshTimeout = 15 * time.Minute
)

// Server wires HTTP handlers to the dataset manager, the merge engine and
// the source registry.
type Server struct {
	router  chi.Router
	dataset *dataset.Manager
	merger  *merge.Merger
	sources *source.Registry
	clock   clock.Clock
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ds *dataset.Manager, merger *merge.Merger, sources *source.Registry, clk clock.Clock, logger *zap.Logger) *Server {
	metrics.Init()
	s := &Server{
		dataset: ds,
		merger:  merger,
		sources: sources,
		clock:   clk,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(readTimeout))
			r.Get("/health", s.health)
			r.Get("/country/{code}", s.getCountry)
		})
		// Refresh runs real crawls and outlives the read timeout.
		r.With(timeoutMiddleware(refreshTimeout)).Post("/data/refresh", s.refresh)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	meta, err := s.dataset.Metadata()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dataset unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"timestamp":    s.clock.Now().UTC().Format(time.RFC3339),
		"data_version": meta.Version,
		"last_crawl":   meta.LastCrawl,
	})
}

type countryResponse struct {
	Code string `json:"code"`
	*merge.CountryRecord
}

func (s *Server) getCountry(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	record, found, err := s.dataset.Country(code)
	if err != nil {
		s.logger.Error("country lookup failed", zap.String("code", code), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "dataset unavailable")
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "country not found", "code": code})
		return
	}
	writeJSON(w, http.StatusOK, countryResponse{Code: code, CountryRecord: record})
}

type refreshRequest struct {
	Scope string `json:"scope"`
}

type refreshResponse struct {
	Status      string   `json:"status"`
	Scope       string   `json:"scope"`
	GeneratedAt string   `json:"generated_at,omitempty"`
	LastCrawl   string   `json:"last_crawl,omitempty"`
	Failed      []string `json:"failed,omitempty"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Scope == "" {
		req.Scope = ScopeAll
	}

	var targets []source.Source
	if req.Scope == ScopeAll {
		targets = s.sources.All()
	} else {
		src, ok := s.sources.Get(req.Scope)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown scope")
			return
		}
		targets = []source.Source{src}
	}

	failed := s.crawl(r.Context(), targets)
	resp := refreshResponse{Scope: req.Scope, Failed: failed}

	if len(targets) > 0 && len(failed) == len(targets) {
		resp.Status = "failed"
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	snap, err := s.merge()
	if err != nil {
		s.logger.Error("merge after refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "merge failed")
		return
	}

	resp.GeneratedAt = snap.Metadata.GeneratedAt
	resp.LastCrawl = snap.Metadata.LastCrawl
	resp.Status = "ok"
	if len(failed) > 0 {
		resp.Status = "partial"
	}
	writeJSON(w, http.StatusOK, resp)
}

// crawl runs the targets concurrently and returns the names of the ones
// that failed, sorted for stable responses.
func (s *Server) crawl(ctx context.Context, targets []source.Source) []string {
	var (
		mu     sync.Mutex
		failed []string
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range targets {
		g.Go(func() error {
			start := time.Now()
			err := src.Crawl(ctx)
			outcome := "ok"
			if err != nil {
				outcome = "error"
				s.logger.Warn("source crawl failed", zap.String("source", src.Name()), zap.Error(err))
				mu.Lock()
				failed = append(failed, src.Name())
				mu.Unlock()
			}
			metrics.ObserveCrawl(src.Name(), outcome, time.Since(start))
			// Failures are reported per source, never abort the group.
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(failed)
	return failed
}

func (s *Server) merge() (*merge.Snapshot, error) {
	start := time.Now()
	snap, err := s.merger.MergeAll()
	if err != nil {
		metrics.ObserveMerge("error", 0, time.Since(start))
		return nil, err
	}
	metrics.ObserveMerge("ok", len(snap.Countries), time.Since(start))
	return snap, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			metrics.ObserveHTTPRequest(r.Method, ww.status)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
