// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package main is the entry point for the Viewfinder server.
//
// Viewfinder learns video preferences from implicit interaction signals
// (views, watch time, repeats) with Alternating Least Squares matrix
// factorization, and serves personalized top-N recommendations over HTTP.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layering of defaults, config.yaml, and
//     VIEWFINDER_* environment variables
//  2. Logging: process-wide zerolog logger
//  3. Model store: versioned gob artifacts under the model directory
//  4. Bootstrap: load the newest stored model, or train from the
//     interaction CSV when the store is empty
//  5. Supervisor tree: the background trainer and the HTTP server run as
//     supervised services
//
// # Configuration
//
// All settings have defaults; common overrides:
//
//	export VIEWFINDER_DATA_INTERACTIONS_PATH=data/interactions.csv
//	export VIEWFINDER_SERVER_PORT=8080
//	export VIEWFINDER_ALS_FACTORS=20
//	export VIEWFINDER_TRAINING_INTERVAL=24h
//	./viewfinder
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests within the configured timeout and the trainer stops at
// the next safe point.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/viewfinder/internal/api"
	"github.com/tomtom215/viewfinder/internal/config"
	"github.com/tomtom215/viewfinder/internal/logging"
	"github.com/tomtom215/viewfinder/internal/model"
	"github.com/tomtom215/viewfinder/internal/supervisor"
	"github.com/tomtom215/viewfinder/internal/trainer"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().
		Int("port", cfg.Server.Port).
		Str("interactions", cfg.Data.InteractionsPath).
		Str("model_dir", cfg.Data.ModelDir).
		Msg("viewfinder starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := model.NewStore(cfg.Data.ModelDir)
	if err != nil {
		return err
	}
	holder := &model.Holder{}

	runner := trainer.NewRunner(cfg, store, holder)
	if err := runner.Bootstrap(ctx); err != nil {
		// Serving can start cold; readiness stays red until a model exists.
		logging.Err(err).Msg("model bootstrap failed, starting without a model")
	}

	router := api.NewRouter(cfg, holder, runner)
	server := api.NewServer(cfg.Server, router)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddTrainingService(runner)
	tree.AddAPIService(server)

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("viewfinder stopped")
	return nil
}
