// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/viewfinder/internal/config"
	"github.com/tomtom215/viewfinder/internal/index"
	"github.com/tomtom215/viewfinder/internal/logging"
	"github.com/tomtom215/viewfinder/internal/metrics"
	"github.com/tomtom215/viewfinder/internal/model"
	"github.com/tomtom215/viewfinder/internal/recommend"
	"github.com/tomtom215/viewfinder/internal/trainer"
)

// TrainerControl is the training surface the API needs: trigger a run and
// ask whether one is executing.
type TrainerControl interface {
	InProgress() bool
	TrainOnce(ctx context.Context) (*model.Snapshot, error)
}

// Handlers serves the recommendation API from the current model snapshot.
type Handlers struct {
	holder   *model.Holder
	trainer  TrainerControl
	cfg      config.APIConfig
	validate *validator.Validate
	started  time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(holder *model.Holder, trainerCtl TrainerControl, cfg config.APIConfig) *Handlers {
	return &Handlers{
		holder:   holder,
		trainer:  trainerCtl,
		cfg:      cfg,
		validate: validator.New(),
		started:  time.Now(),
	}
}

// recommendRequest carries the validated query parameters of a
// recommendation request.
type recommendRequest struct {
	UserID      string `validate:"required"`
	K           int    `validate:"gte=1"`
	IncludeSeen bool
}

// recommendResponse is the recommend endpoint payload.
type recommendResponse struct {
	UserID          string                     `json:"user_id"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
	ModelVersion    int                        `json:"model_version"`
}

// Recommend handles GET /api/v1/recommend.
func (h *Handlers) Recommend(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	snap := h.holder.Load()
	if snap == nil {
		metrics.RecommendationsServed.WithLabelValues("no_model").Inc()
		rw.Error(http.StatusServiceUnavailable, ErrCodeModelNotReady, "No trained model is available yet")
		return
	}

	req, err := h.parseRecommendRequest(r)
	if err != nil {
		rw.ValidationError("Invalid request parameters", err.Error())
		return
	}

	scoreStart := time.Now()
	recs, err := recommend.Recommend(snap, req.UserID, req.K, !req.IncludeSeen)
	metrics.RecommendationLatency.Observe(time.Since(scoreStart).Seconds())
	if err != nil {
		var unknownErr *index.UnknownEntityError
		if errors.As(err, &unknownErr) {
			metrics.RecommendationsServed.WithLabelValues("unknown_user").Inc()
			rw.Error(http.StatusNotFound, ErrCodeUserNotFound,
				fmt.Sprintf("User %q is not present in the trained model", req.UserID))
			return
		}
		logging.Ctx(r.Context()).Err(err).Str("user_id", req.UserID).Msg("recommendation scoring failed")
		rw.InternalError("Failed to compute recommendations")
		return
	}

	if len(recs) == 0 {
		metrics.RecommendationsServed.WithLabelValues("empty").Inc()
		rw.Error(http.StatusNotFound, ErrCodeNoRecommendations,
			fmt.Sprintf("No recommendations available for user %q", req.UserID))
		return
	}

	metrics.RecommendationsServed.WithLabelValues("ok").Inc()
	rw.Success(recommendResponse{
		UserID:          req.UserID,
		Recommendations: recs,
		ModelVersion:    snap.Meta().Version,
	})
}

// parseRecommendRequest extracts and validates the query parameters.
func (h *Handlers) parseRecommendRequest(r *http.Request) (*recommendRequest, error) {
	q := r.URL.Query()

	req := &recommendRequest{
		UserID: q.Get("user_id"),
		K:      h.cfg.DefaultK,
	}
	if raw := q.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("k must be an integer, got %q", raw)
		}
		req.K = k
	}
	if raw := q.Get("include_seen"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("include_seen must be a boolean, got %q", raw)
		}
		req.IncludeSeen = include
	}

	if err := h.validate.Struct(req); err != nil {
		return nil, err
	}
	if req.K > h.cfg.MaxK {
		return nil, fmt.Errorf("k must be at most %d, got %d", h.cfg.MaxK, req.K)
	}
	return req, nil
}

// ModelStatus handles GET /api/v1/model/status.
func (h *Handlers) ModelStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	snap := h.holder.Load()
	if snap == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeModelNotReady, "No trained model is available yet")
		return
	}

	rw.Success(struct {
		model.Metadata
		TrainingInProgress bool `json:"training_in_progress"`
	}{
		Metadata:           snap.Meta(),
		TrainingInProgress: h.trainer.InProgress(),
	})
}

// TriggerTrain handles POST /api/v1/model/train. Training runs in the
// background; the response only acknowledges the start.
func (h *Handlers) TriggerTrain(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.trainer.InProgress() {
		rw.Error(http.StatusConflict, ErrCodeTrainingInProgress, "A training run is already in progress")
		return
	}

	go func() {
		if _, err := h.trainer.TrainOnce(context.Background()); err != nil {
			if errors.Is(err, trainer.ErrTrainingInProgress) {
				return
			}
			logger := logging.WithComponent("api")
			logger.Err(err).Msg("triggered training run failed")
		}
	}()

	rw.Accepted(map[string]string{"status": "training started"})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Liveness handles GET /health/live: the process is up.
func (h *Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// Readiness handles GET /health/ready: ready means a model is serving.
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.holder.Load() == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeModelNotReady, "No trained model is available yet")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}
