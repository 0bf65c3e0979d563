package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kilnrun/kiln/pkg/auth"
	"github.com/kilnrun/kiln/pkg/log"
	"github.com/kilnrun/kiln/pkg/metrics"
	"github.com/kilnrun/kiln/pkg/orchestrator"
	"github.com/kilnrun/kiln/pkg/ratelimit"
	"github.com/kilnrun/kiln/pkg/signing"
	"github.com/kilnrun/kiln/pkg/storage"
	"github.com/kilnrun/kiln/pkg/stream"
)

// Server is the HTTP gateway: REST endpoints for runs and files, signed
// downloads, and the websocket streaming endpoint.
type Server struct {
	orch    *orchestrator.Orchestrator
	blobs   *storage.Store
	signer  *signing.Signer
	hub     *stream.Hub
	tenants *auth.Registry
	limiter *ratelimit.Limiter
	logger  zerolog.Logger

	httpSrv *http.Server
}

// NewServer wires the gateway's HTTP surface.
func NewServer(orch *orchestrator.Orchestrator, blobs *storage.Store, signer *signing.Signer, hub *stream.Hub, tenants *auth.Registry, limiter *ratelimit.Limiter) *Server {
	return &Server{
		orch:    orch,
		blobs:   blobs,
		signer:  signer,
		hub:     hub,
		tenants: tenants,
		limiter: limiter,
		logger:  log.WithComponent("api"),
	}
}

// Router builds the route tree. Health, metrics, and signed downloads are
// public; everything else requires a bearer token and passes the per-tenant
// rate limiter.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.instrument)

	r.Get("/v1/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/v1/files/{id}", s.handleDownloadFile)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Post("/v1/files", s.handleUploadFile)
		r.Post("/v1/runs", s.handleCreateRun)
		r.Get("/v1/runs/{id}", s.handleGetRun)
		r.Post("/v1/runs/stream", s.handleStartStreamRun)
		r.Get("/v1/runs/{id}/stream", s.handleRunStream)
	})

	return r
}

// Start begins serving on addr and blocks until the listener fails or the
// server is shut down.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
