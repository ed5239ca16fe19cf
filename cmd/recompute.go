package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/huishype/huishype/internal/app"
	"github.com/huishype/huishype/internal/domain/types"
	"github.com/huishype/huishype/pkg/logger"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Re-estimate every stored property and print the divergence board",
	RunE:  runRecompute,
}

var recomputeTop int

func init() {
	recomputeCmd.Flags().IntVarP(&recomputeTop, "top", "n", 10, "Number of board entries to print")
	rootCmd.AddCommand(recomputeCmd)
}

type recomputeReport struct {
	Properties int           `json:"properties"`
	Top        []types.Entry `json:"top"`
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := setup(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if recomputeTop < 1 {
		return fmt.Errorf("--top must be positive, got %d", recomputeTop)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := service.New(store,
		service.WithRecomputeConcurrency(cfg.RecomputeConcurrency),
		service.WithEstimator(newEstimator(cfg)),
	)
	n, err := svc.RecomputeAll(ctx)
	if err != nil {
		return err
	}
	top, err := svc.TopDivergence(ctx, recomputeTop)
	if err != nil {
		return err
	}
	logger.Get().Named("recompute").Info(ctx, "recompute finished", logger.Int("properties", n))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(recomputeReport{Properties: n, Top: top})
}
