// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package config provides centralized configuration for all Viewfinder
// components: the HTTP server, the ingestion source, ALS training
// hyperparameters, artifact storage, and logging.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all settings
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: VIEWFINDER_* overrides any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Data     DataConfig     `koanf:"data"`
	ALS      ALSConfig      `koanf:"als"`
	Training TrainingConfig `koanf:"training"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the listen address. Default: 0.0.0.0.
	Host string `koanf:"host"`

	// Port is the listen port. Default: 8080.
	Port int `koanf:"port"`

	// Timeout is the per-request read/write timeout. Default: 30s.
	Timeout time.Duration `koanf:"timeout"`

	// ShutdownTimeout is the graceful shutdown deadline. Default: 10s.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DataConfig holds data source and artifact storage settings.
type DataConfig struct {
	// InteractionsPath is the CSV file of raw user-video interactions.
	// Default: data/interactions.csv.
	InteractionsPath string `koanf:"interactions_path"`

	// ModelDir is the directory where trained artifacts are persisted.
	// Default: data/models.
	ModelDir string `koanf:"model_dir"`
}

// ALSConfig holds the ALS training hyperparameters.
type ALSConfig struct {
	// Factors is the latent dimensionality k. Higher captures more nuance
	// but raises compute cost and overfitting risk on sparse data.
	// Default: 20.
	Factors int `koanf:"factors"`

	// Regularization is the L2 shrinkage lambda added to the normal
	// equations' diagonal. Larger values stabilize solutions for users and
	// items with few observations. Default: 0.1.
	Regularization float64 `koanf:"regularization"`

	// Iterations is the fixed number of alternation rounds. Default: 20.
	Iterations int `koanf:"iterations"`

	// Alpha scales the confidence transform c = 1 + alpha*r when
	// ConfidenceMode is "linear". Default: 40.0.
	Alpha float64 `koanf:"alpha"`

	// ConfidenceMode selects how aggregated ratings become confidence
	// weights: "linear" (c = 1 + alpha*r) or "raw" (c = r, the weights
	// summed upstream used directly). Default: linear.
	ConfidenceMode string `koanf:"confidence_mode"`

	// Seed is the random seed for factor initialization. A fixed seed makes
	// training reproducible. Default: 42.
	Seed int64 `koanf:"seed"`

	// Workers is the number of parallel per-entity solvers within each
	// alternation step. 0 uses runtime.NumCPU(). Default: 0.
	Workers int `koanf:"workers"`

	// EarlyStopTolerance enables reconstruction-error early stopping when
	// > 0: training stops once the observed-cell RMSE improves by less than
	// the tolerance between rounds. 0 (the default) keeps the fixed
	// iteration count for reproducibility.
	EarlyStopTolerance float64 `koanf:"early_stop_tolerance"`
}

// TrainingConfig holds the background retraining schedule.
type TrainingConfig struct {
	// Interval is the time between scheduled retraining runs.
	// Default: 24h.
	Interval time.Duration `koanf:"interval"`

	// TrainOnStartup trains from the interaction source at boot when no
	// stored artifact can be loaded. Default: true.
	TrainOnStartup bool `koanf:"train_on_startup"`

	// RetainVersions is the number of artifact versions kept on disk.
	// Default: 3.
	RetainVersions int `koanf:"retain_versions"`
}

// APIConfig holds request handling limits.
type APIConfig struct {
	// DefaultK is the number of recommendations returned when the request
	// does not specify k. Default: 5.
	DefaultK int `koanf:"default_k"`

	// MaxK caps the requested k. Default: 100.
	MaxK int `koanf:"max_k"`

	// RateLimitRequests is the allowed requests per window per client IP.
	// Default: 100.
	RateLimitRequests int `koanf:"rate_limit_requests"`

	// RateLimitWindow is the rate limiting window. Default: 1m.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists allowed CORS origins. Default: empty (CORS off).
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level. Default: info.
	Level string `koanf:"level"`

	// Format is json or console. Default: json.
	Format string `koanf:"format"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}

	if c.Data.InteractionsPath == "" {
		return fmt.Errorf("data.interactions_path must not be empty")
	}
	if c.Data.ModelDir == "" {
		return fmt.Errorf("data.model_dir must not be empty")
	}

	if c.ALS.Factors < 1 {
		return fmt.Errorf("als.factors must be positive, got %d", c.ALS.Factors)
	}
	if c.ALS.Regularization < 0 {
		return fmt.Errorf("als.regularization must be non-negative, got %f", c.ALS.Regularization)
	}
	if c.ALS.Iterations < 1 {
		return fmt.Errorf("als.iterations must be positive, got %d", c.ALS.Iterations)
	}
	if c.ALS.Alpha < 0 {
		return fmt.Errorf("als.alpha must be non-negative, got %f", c.ALS.Alpha)
	}
	if c.ALS.ConfidenceMode != "linear" && c.ALS.ConfidenceMode != "raw" {
		return fmt.Errorf("als.confidence_mode must be %q or %q, got %q", "linear", "raw", c.ALS.ConfidenceMode)
	}
	if c.ALS.EarlyStopTolerance < 0 {
		return fmt.Errorf("als.early_stop_tolerance must be non-negative, got %f", c.ALS.EarlyStopTolerance)
	}

	if c.Training.Interval <= 0 {
		return fmt.Errorf("training.interval must be positive, got %v", c.Training.Interval)
	}
	if c.Training.RetainVersions < 1 {
		return fmt.Errorf("training.retain_versions must be positive, got %d", c.Training.RetainVersions)
	}

	if c.API.DefaultK < 1 {
		return fmt.Errorf("api.default_k must be positive, got %d", c.API.DefaultK)
	}
	if c.API.MaxK < c.API.DefaultK {
		return fmt.Errorf("api.max_k must be >= api.default_k, got %d < %d", c.API.MaxK, c.API.DefaultK)
	}

	return nil
}
