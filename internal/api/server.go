package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/config"
	"github.com/videlboga/cyberkitty119-sub001/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// Deps carries the handler dependencies for the HTTP server. Optional fields
// may be nil; the corresponding endpoints degrade gracefully.
type Deps struct {
	Jobs    *JobsHandler
	Results *ResultsHandler
	Health  *HealthHandler
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORSWithOrigins(cfg.CORSOrigins))
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	// Unauthenticated operational endpoints
	r.Get("/healthz", deps.Health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Authenticated API
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Post("/api/v1/jobs", deps.Jobs.Create)
		r.Get("/api/v1/results/{requester}", deps.Results.Get)
		r.Get("/api/v1/results/{requester}/summary", deps.Results.Summary)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
