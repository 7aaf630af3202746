// Package server exposes the engine over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/engine"
	"github.com/lazypower/resonance/internal/logging"
)

// Server is the resonance HTTP API server.
type Server struct {
	engine  *engine.Engine
	log     *zap.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over eng.
func New(eng *engine.Engine, log *zap.Logger, version string) *Server {
	s := &Server{
		engine:  eng,
		log:     logging.OrNop(log).Named("http"),
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(metrics)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Post("/analyze", s.handleAnalyze)
			r.Get("/subjects", s.handleSubjects)
			r.Get("/summary", s.handleSummary)
			r.Get("/resonance", s.handleResonance)
			r.Get("/proposals", s.handleProposals)
			r.Post("/proposals/dismiss", s.handleDismiss)
			r.Post("/switch", s.handleSwitch)
		})
		r.Post("/subjects/merge", s.handleMerge)

		r.Get("/proposals/config", s.handleGetProposalConfig)
		r.Put("/proposals/config", s.handlePutProposalConfig)

		r.Post("/access", s.handleUpdateAccess)
		r.Get("/access/{keyword}", s.handleListAccess)
		r.Get("/keywords", s.handleKeywords)

		r.Get("/principals", s.handlePrincipals)
		r.Post("/principals", s.handleRegisterPrincipal)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.engine.DB.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.engine.DB.Path,
		"llm":     s.engine.LLM != nil,
	})
}
