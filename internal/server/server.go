// Package server exposes the ledger service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"contract-run-go/internal/common"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type RouterDeps struct {
	Service        Service
	RateLimiter    *RateLimiter
	MetricsHandler http.Handler
	// Catalog backs GET /api/contracts/options; nil leaves the route unmounted
	Catalog *common.Catalog
}

// NewRouter builds the full route tree
func NewRouter(deps RouterDeps) http.Handler {
	h := &handlers{service: deps.Service, catalog: deps.Catalog}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(logRequests)

	r.Get("/healthz", h.healthz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/api/runs", func(r chi.Router) {
			r.Post("/", h.startRun)
			r.Get("/current", h.runStatus)
			r.Post("/stop", h.stopRun)
			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.Middleware).Post("/heartbeat", h.heartbeat)
			} else {
				r.Post("/heartbeat", h.heartbeat)
			}
		})

		if deps.Catalog != nil {
			r.Get("/api/contracts/options", h.contractOptions)
		}
		r.Post("/api/contracts/{id}/stop", h.stopContract)
		r.Get("/api/dashboard", h.dashboard)
		r.Post("/api/withdrawals", h.withdraw)
		r.Get("/api/transactions", h.transactions)
	})

	return r
}

// Server is an h2c-capable HTTP server
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

func New(addr string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
