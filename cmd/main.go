// Package main provides the huishype command line: the HTTP service plus
// offline tools around the estimation engine.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/huishype/huishype/internal/adapters/repository"
	"github.com/huishype/huishype/internal/config"
	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "huishype",
	Short:         "Crowd-sourced fair market value estimates for properties",
	Long:          "huishype turns karma-weighted price guesses into fair market value estimates, blends them with official valuations and ranks properties by how far they sit from their asking price.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to a YAML config file (overrides "+config.EnvConfigFile+")")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file and the environment.
func loadConfig(ctx context.Context) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(ctx, configPath)
	}
	return config.Load(ctx)
}

// activeConfigPath is the file the running config was read from, if any.
func activeConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv(config.EnvConfigFile)
}

// initLogger sets up the global logger at the configured level.
func initLogger(w io.Writer, level string) error {
	if err := logger.InitWithWriter(w, "text"); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(level); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", level), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

// setup loads config and logs to w. Tool commands log to stderr so their
// stdout stays machine readable.
func setup(ctx context.Context, w io.Writer) (*config.Config, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := initLogger(w, cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the configured store and makes sure its schema exists.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var (
		store repository.Store
		err   error
	)
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		store, err = repository.ConnectPostgres(ctx, cfg.DatabaseURL)
	default:
		store, err = repository.OpenSQLite(cfg.SQLitePath)
	}
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// newEstimator builds the estimation policy from config.
func newEstimator(cfg *config.Config) *fmv.Estimator {
	return fmv.New(
		fmv.WithOutlierBand(cfg.OutlierSigma),
		fmv.WithOfficialWeights(cfg.OfficialWeightLow, cfg.OfficialWeightMedium),
	)
}

func jwtExpiration(cfg *config.Config) time.Duration {
	return time.Duration(cfg.JWTExpirationHours) * time.Hour
}
