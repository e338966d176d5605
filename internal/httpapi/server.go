// Package httpapi provides an optional read-only status HTTP surface,
// grounded on the teacher's own chi-based server package but trimmed to the
// three endpoints a Convert rebalancing process needs to expose: liveness,
// a status summary, and the durable position snapshot.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/healthcheck"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Config holds server construction parameters.
type Config struct {
	Log       zerolog.Logger
	Positions domain.PositionStore
	History   domain.HistoryStore
	Health    *healthcheck.Checker
	Port      int
	DevMode   bool
}

// Server wraps a chi router and its http.Server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	positions domain.PositionStore
	history   domain.HistoryStore
	health    *healthcheck.Checker
}

// New builds a Server with chi's recoverer/request-ID/real-IP/logging/CORS
// middleware stack, matching the teacher's own setupMiddleware ordering.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "httpapi").Logger(),
		positions: cfg.Positions,
		history:   cfg.History,
		health:    cfg.Health,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"Accept"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/positions", s.handlePositions)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// handleHealthz reports process liveness plus host resource pressure.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.health.Sample()
	status, state := http.StatusOK, "healthy"
	if !snap.Healthy() {
		status, state = http.StatusServiceUnavailable, "degraded"
	}
	s.writeJSON(w, status, map[string]interface{}{
		"status":  state,
		"metrics": snap,
	})
}

// handleStatus summarizes the durable position state and the 10 most
// recent ledger entries.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.positions.Load()
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"position_state": "unavailable",
			"error":          err.Error(),
		})
		return
	}

	recent, err := s.history.Recent(10)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read recent history for status")
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_peak": state.PortfolioPeak.String(),
		"asset_count":    len(state.Assets),
		"last_updated":   state.TS,
		"recent_trades":  recent,
	})
}

// handlePositions returns the raw PositionState.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	state, err := s.positions.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode json response")
	}
}

// Start runs the server until it errors or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting status http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down status http server")
	return s.server.Shutdown(ctx)
}
