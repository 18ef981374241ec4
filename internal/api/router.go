// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/viewfinder/internal/config"
	"github.com/tomtom215/viewfinder/internal/model"
)

// NewRouter builds the HTTP routing tree with the full middleware stack.
func NewRouter(cfg *config.Config, holder *model.Holder, trainerCtl TrainerControl) http.Handler {
	h := NewHandlers(holder, trainerCtl, cfg.API)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityHeaders())
	r.Use(Observability())
	if len(cfg.API.CORSOrigins) > 0 {
		r.Use(CORSMiddleware(cfg.API.CORSOrigins))
	}

	r.Get("/health", h.Health)
	r.Get("/health/live", h.Liveness)
	r.Get("/health/ready", h.Readiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.API.RateLimitRequests, cfg.API.RateLimitWindow))

		r.Get("/recommend", h.Recommend)
		r.Get("/model/status", h.ModelStatus)
		r.Post("/model/train", h.TriggerTrain)
	})

	return r
}
