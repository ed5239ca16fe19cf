// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading functions accept context.Context as the first parameter.
// - Failures wrap ErrLoadConfig or ErrInvalidConfig.
package config

import (
	"runtime"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory guess event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of workers applying guess events.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the idempotency key cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxBoardLimit caps GET /divergence?limit.
	MaxBoardLimit int `koanf:"max_board_limit"`

	// StorageDriver selects the backing store: sqlite or postgres.
	StorageDriver string `koanf:"storage_driver"`
	SQLitePath    string `koanf:"sqlite_path"`
	DatabaseURL   string `koanf:"database_url"`

	JWTSecret          string `koanf:"jwt_secret"`
	JWTExpirationHours int    `koanf:"jwt_expiration_hours"`

	// RecomputeConcurrency bounds parallel estimates during a full recompute.
	RecomputeConcurrency int `koanf:"recompute_concurrency"`

	// Estimation policy.
	OutlierSigma         float64 `koanf:"outlier_sigma"`
	OfficialWeightLow    float64 `koanf:"official_weight_low"`
	OfficialWeightMedium float64 `koanf:"official_weight_medium"`

	// WSEnabled mounts the /ws/fmv live update endpoint.
	WSEnabled bool `koanf:"ws_enabled"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		EventQueueSize:       10_000,
		WorkerCount:          runtime.NumCPU() * 2,
		DedupeSize:           50_000,
		MaxBoardLimit:        100,
		StorageDriver:        DriverSQLite,
		SQLitePath:           "huishype.db",
		JWTSecret:            "dev-secret-change-me",
		JWTExpirationHours:   24,
		RecomputeConcurrency: 8,
		OutlierSigma:         2.0,
		OfficialWeightLow:    0.7,
		OfficialWeightMedium: 0.3,
		WSEnabled:            true,
	}
}
