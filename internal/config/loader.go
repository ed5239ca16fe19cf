package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	EnvPrefix     = "HUISHYPE_"
	EnvConfigFile = "HUISHYPE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. .env in the working directory, if present
//  3. file (YAML) if HUISHYPE_CONFIG is set
//  4. env (prefix HUISHYPE_)
func Load(ctx context.Context) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return load(ctx, os.Getenv(EnvConfigFile))
}

// LoadFile is Load with an explicit YAML path instead of HUISHYPE_CONFIG.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	return load(ctx, path)
}

func load(_ context.Context, path string) (*Config, error) {
	base := New()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrLoadConfig, path, err)
		}
	}

	// HUISHYPE_QUEUE_SIZE -> queue_size. Underscores are kept to match the
	// flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.EventQueueSize <= 0:
		return invalid("queue_size must be positive, got %d", c.EventQueueSize)
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	case c.MaxBoardLimit <= 0:
		return invalid("max_board_limit must be positive, got %d", c.MaxBoardLimit)
	case c.RecomputeConcurrency <= 0:
		return invalid("recompute_concurrency must be positive, got %d", c.RecomputeConcurrency)
	case c.JWTSecret == "":
		return invalid("jwt_secret must not be empty")
	case c.JWTExpirationHours <= 0:
		return invalid("jwt_expiration_hours must be positive, got %d", c.JWTExpirationHours)
	case !(c.OutlierSigma > 0) || math.IsInf(c.OutlierSigma, 0):
		return invalid("outlier_sigma must be a positive number, got %v", c.OutlierSigma)
	case !inUnit(c.OfficialWeightLow):
		return invalid("official_weight_low must be within [0,1], got %v", c.OfficialWeightLow)
	case !inUnit(c.OfficialWeightMedium):
		return invalid("official_weight_medium must be within [0,1], got %v", c.OfficialWeightMedium)
	}

	switch c.StorageDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path must not be empty")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return invalid("database_url is required for the postgres driver")
		}
	default:
		return invalid("unknown storage_driver %q", c.StorageDriver)
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
