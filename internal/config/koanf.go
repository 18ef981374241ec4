// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search paths when set.
const ConfigPathEnvVar = "VIEWFINDER_CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping them to
// config paths.
const envPrefix = "VIEWFINDER_"

// DefaultConfigPaths are searched in order for a YAML config file.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/viewfinder/config.yaml",
}

// defaultConfig returns the built-in defaults. The ALS defaults follow the
// hyperparameters the engine was tuned with: 20 factors, lambda 0.1,
// 20 iterations.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Data: DataConfig{
			InteractionsPath: "data/interactions.csv",
			ModelDir:         "data/models",
		},
		ALS: ALSConfig{
			Factors:        20,
			Regularization: 0.1,
			Iterations:     20,
			Alpha:          40.0,
			ConfidenceMode: "linear",
			Seed:           42,
			Workers:        0,
		},
		Training: TrainingConfig{
			Interval:       24 * time.Hour,
			TrainOnStartup: true,
			RetainVersions: 3,
		},
		API: APIConfig{
			DefaultK:          5,
			MaxK:              100,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from three layers, each overriding the last:
//
//  1. Built-in defaults
//  2. YAML config file (optional; VIEWFINDER_CONFIG_PATH or default paths)
//  3. VIEWFINDER_* environment variables
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// VIEWFINDER_SERVER_PORT -> server.port
	// VIEWFINDER_ALS_CONFIDENCE_MODE -> als.confidence_mode
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "" if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// configSections are the top-level koanf keys, used to split environment
// variable names into section and field.
var configSections = []string{"server", "data", "als", "training", "api", "logging"}

// envTransformFunc maps a VIEWFINDER_-prefixed environment variable name
// (prefix already stripped by the provider) to its koanf path. The first
// segment selects the section; the rest keeps its underscores:
//
//	SERVER_PORT          -> server.port
//	ALS_CONFIDENCE_MODE  -> als.confidence_mode
//	DATA_MODEL_DIR       -> data.model_dir
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	for _, section := range configSections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	// Unrecognized variables are dropped rather than polluting the tree.
	return ""
}

// sliceConfigPaths are fields that may arrive from the environment as
// comma-separated strings but unmarshal into []string.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice from the YAML layer.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if s, ok := val.(string); ok {
			parts := strings.Split(s, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}
