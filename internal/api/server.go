// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the catalog, observation ingestion and transfer
// control over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/xgrab/internal/api/middleware"
	"github.com/ManuGH/xgrab/internal/catalog"
	"github.com/ManuGH/xgrab/internal/classify"
	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/health"
	"github.com/ManuGH/xgrab/internal/orchestrator"
	"github.com/ManuGH/xgrab/internal/transfer"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

// PageScanner finds media elements on a page.
type PageScanner interface {
	Scan(ctx context.Context, pageURL string, contextID *int64) ([]classify.DomObservation, error)
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Catalog      *catalog.Catalog
	Tracker      *transfer.Tracker
	Settings     *config.SettingsStore
	Scanner      PageScanner
	Health       *health.Manager
}

// Options tune the router.
type Options struct {
	RequestsPerMinute int
	TracingService    string
	EnableMetrics     bool
	EnableLogging     bool
}

// Server owns the router.
type Server struct {
	deps   Deps
	router chi.Router
}

// New builds the router for deps.
func New(deps Deps, opts Options) *Server {
	s := &Server{deps: deps}
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  opts.EnableMetrics,
		TracingService: opts.TracingService,
		EnableLogging:  opts.EnableLogging,
	})

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.ServeHealth)
		r.Get("/readyz", deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if opts.RequestsPerMinute > 0 {
				r.Use(middleware.IngestRateLimit(opts.RequestsPerMinute))
			}
			r.Post("/observations/network", s.handleNetworkObservation)
			r.Post("/observations/dom", s.handleDomObservation)
			r.Post("/navigations", s.handleNavigation)
		})

		r.Post("/media/size", s.handleProbeSize)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Route("/contexts/{ctx}", func(r chi.Router) {
			r.Get("/media", s.handleListMedia)
			r.Delete("/media", s.handleClearMedia)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/scan", s.handleScan)
			r.Delete("/watch", s.handleStopWatch)
			r.Post("/transfers", s.handleStartTransfer)
			r.Get("/transfer", s.handleGetTransfer)
			r.Delete("/transfer", s.handleCancelTransfer)
			r.Delete("/transfer/state", s.handleClearTransferState)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Problem{Error: "not_found", Detail: r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Problem{Error: "method_not_allowed", Detail: r.Method})
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }
