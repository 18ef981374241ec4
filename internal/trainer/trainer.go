// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package trainer owns the train-persist-swap pipeline: load interactions,
// fit the factor model, persist a versioned artifact, and publish the new
// snapshot to the serving holder.
//
// Runner implements suture.Service; the supervisor restarts it if the
// periodic loop ever fails. Scheduled runs and API-triggered runs go
// through the same single-flight gate, so at most one training run is in
// progress at a time.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tomtom215/viewfinder/internal/als"
	"github.com/tomtom215/viewfinder/internal/config"
	"github.com/tomtom215/viewfinder/internal/ingest"
	"github.com/tomtom215/viewfinder/internal/logging"
	"github.com/tomtom215/viewfinder/internal/metrics"
	"github.com/tomtom215/viewfinder/internal/model"
)

// ErrTrainingInProgress is returned when a run is requested while another
// run is still executing.
var ErrTrainingInProgress = errors.New("training already in progress")

// Runner executes training runs and publishes the results.
type Runner struct {
	cfg    *config.Config
	store  *model.Store
	holder *model.Holder

	running atomic.Bool
}

// NewRunner creates a Runner publishing snapshots to holder and artifacts
// to store.
func NewRunner(cfg *config.Config, store *model.Store, holder *model.Holder) *Runner {
	return &Runner{cfg: cfg, store: store, holder: holder}
}

// String names the service in supervisor logs.
func (r *Runner) String() string { return "trainer" }

// InProgress reports whether a training run is currently executing.
func (r *Runner) InProgress() bool { return r.running.Load() }

// Serve runs scheduled retraining until the context is cancelled. It
// satisfies suture.Service; a clean shutdown returns the context error so
// the supervisor does not restart the service.
func (r *Runner) Serve(ctx context.Context) error {
	logger := logging.WithComponent("trainer")
	logger.Info().Dur("interval", r.cfg.Training.Interval).Msg("retraining schedule started")

	ticker := time.NewTicker(r.cfg.Training.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("retraining schedule stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.TrainOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				// A failed scheduled run is logged and retried next
				// tick; the last good snapshot keeps serving.
				logger.Err(err).Msg("scheduled training run failed")
			}
		}
	}
}

// TrainOnce executes one full training run and publishes the result. Only
// one run may execute at a time; concurrent callers get
// ErrTrainingInProgress.
func (r *Runner) TrainOnce(ctx context.Context) (*model.Snapshot, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrTrainingInProgress
	}
	defer r.running.Store(false)

	logger := logging.WithComponent("trainer")
	started := time.Now()

	ds, err := ingest.LoadFile(r.cfg.Data.InteractionsPath)
	if err != nil {
		metrics.TrainingRunsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("ingest: %w", err)
	}

	alsCfg := als.Config{
		Factors:            r.cfg.ALS.Factors,
		Iterations:         r.cfg.ALS.Iterations,
		Regularization:     r.cfg.ALS.Regularization,
		Alpha:              r.cfg.ALS.Alpha,
		ConfidenceMode:     als.ConfidenceMode(r.cfg.ALS.ConfidenceMode),
		Seed:               r.cfg.ALS.Seed,
		Workers:            r.cfg.ALS.Workers,
		EarlyStopTolerance: r.cfg.ALS.EarlyStopTolerance,
	}
	factors, err := als.NewTrainer(alsCfg).Train(ctx, ds.Matrix)
	if err != nil {
		metrics.TrainingRunsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("train: %w", err)
	}

	params := model.Params{
		Factors:        alsCfg.Factors,
		Iterations:     alsCfg.Iterations,
		Regularization: alsCfg.Regularization,
		Alpha:          alsCfg.Alpha,
		ConfidenceMode: string(alsCfg.ConfidenceMode),
		Seed:           alsCfg.Seed,
	}
	snap, err := model.New(factors, ds.Users, ds.Videos, ds.Matrix, params, time.Now().UTC())
	if err != nil {
		metrics.TrainingRunsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	version, err := r.store.Save(snap)
	if err != nil {
		metrics.TrainingRunsTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("persist: %w", err)
	}
	snap = snap.WithVersion(version)
	if err := r.store.Prune(r.cfg.Training.RetainVersions); err != nil {
		// Pruning failure keeps extra artifacts around but the new model
		// is already safe on disk.
		logger.Err(err).Msg("artifact pruning failed")
	}

	r.holder.Swap(snap)

	meta := snap.Meta()
	metrics.TrainingRunsTotal.WithLabelValues("success").Inc()
	metrics.TrainingDuration.Observe(time.Since(started).Seconds())
	metrics.RecordModel(version, meta.Users, meta.Videos, meta.Interactions)

	logger.Info().
		Int("version", version).
		Int("users", meta.Users).
		Int("videos", meta.Videos).
		Int("interactions", meta.Interactions).
		Dur("elapsed", time.Since(started)).
		Msg("training run complete")
	return snap, nil
}

// Bootstrap loads the newest stored artifact into the holder, or trains
// from the interaction source when the store is empty and startup training
// is enabled. Returning without a snapshot is not an error: the service can
// start cold and train later.
func (r *Runner) Bootstrap(ctx context.Context) error {
	logger := logging.WithComponent("trainer")

	snap, err := r.store.LoadLatest()
	switch {
	case err == nil:
		r.holder.Swap(snap)
		meta := snap.Meta()
		metrics.RecordModel(meta.Version, meta.Users, meta.Videos, meta.Interactions)
		logger.Info().
			Int("version", meta.Version).
			Time("trained_at", meta.TrainedAt).
			Msg("loaded model artifact from disk")
		return nil
	case errors.Is(err, model.ErrNoArtifacts):
		logger.Info().Msg("no stored model artifacts")
	default:
		return fmt.Errorf("load latest artifact: %w", err)
	}

	if !r.cfg.Training.TrainOnStartup {
		logger.Warn().Msg("startup training disabled; serving without a model until first run")
		return nil
	}
	if _, err := r.TrainOnce(ctx); err != nil {
		return fmt.Errorf("startup training: %w", err)
	}
	return nil
}
