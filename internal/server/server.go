// Package server exposes the sync pipeline over HTTP so a scheduler or an
// operator can trigger a run without shell access.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/chartsync/internal/model"
	"github.com/sells-group/chartsync/internal/pipeline"
	"github.com/sells-group/chartsync/internal/syncerr"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*model.RunReport, error)
}

// SyncRequest is the body of POST /v1/sync. An empty body means a full run.
type SyncRequest struct {
	SkipScrape bool `json:"skip_scrape"`
}

// SyncResponse is returned by POST /v1/sync.
type SyncResponse struct {
	// Shared is true when the request joined a run that was already in flight.
	Shared bool `json:"shared"`

	// SkipScrape reports the mode of the run that produced Report.
	SkipScrape bool `json:"skip_scrape"`

	Report *model.RunReport `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
	Kind   string           `json:"kind,omitempty"`
}

// Server coalesces concurrent triggers of the same mode and runs at most one
// pipeline at a time.
type Server struct {
	runner Runner
	group  singleflight.Group
	runMu  sync.Mutex
	router chi.Router
}

// New builds the router. allowedOrigins configures CORS; empty disables it.
func New(runner Runner, allowedOrigins []string) *Server {
	s := &Server{runner: runner}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Post("/v1/sync", s.handleSync)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, SyncResponse{Error: "invalid request body"})
		return
	}

	// A run outlives the request that started it; other callers may be
	// waiting on the same result.
	ctx := context.WithoutCancel(r.Context())
	ch := s.group.DoChan(flightKey(req.SkipScrape), func() (any, error) {
		s.runMu.Lock()
		defer s.runMu.Unlock()
		return s.runner.Run(ctx, pipeline.Options{SkipScrape: req.SkipScrape})
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-r.Context().Done():
		zap.L().Warn("server: client went away before run finished",
			zap.String("request_id", middleware.GetReqID(r.Context())))
		return
	}

	rep, _ := res.Val.(*model.RunReport)
	resp := SyncResponse{Shared: res.Shared, SkipScrape: req.SkipScrape, Report: rep}
	if rep != nil {
		resp.SkipScrape = rep.SkipScrape
	}
	if res.Err != nil {
		kind := syncerr.KindOf(res.Err)
		resp.Error = res.Err.Error()
		resp.Kind = kind.String()
		writeJSON(w, statusFor(kind), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func flightKey(skipScrape bool) string {
	if skipScrape {
		return "sync:skip-scrape"
	}
	return "sync:full"
}

// statusFor maps a failure class to an HTTP status.
func statusFor(k syncerr.Kind) int {
	switch k {
	case syncerr.MissingInput:
		return http.StatusConflict
	case syncerr.Mapping, syncerr.Extraction:
		return http.StatusUnprocessableEntity
	case syncerr.Fetch, syncerr.Auth, syncerr.Upsert:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
