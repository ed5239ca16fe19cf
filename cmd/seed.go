package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huishype/huishype/internal/adapters/repository"
	"github.com/huishype/huishype/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load users, properties and guesses from a YAML file into the store",
	RunE:  runSeed,
}

var seedFile string

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "Path to the seed YAML file (required)")
	if err := seedCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Sprintf("failed to mark file flag as required: %v", err))
	}
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := setup(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	seed, err := repository.LoadSeedFile(seedFile)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	counts, err := repository.ApplySeed(ctx, store, seed)
	if err != nil {
		return err
	}
	logger.Get().Named("seed").Info(ctx, "seed applied",
		logger.Int("users", counts.Users),
		logger.Int("properties", counts.Properties),
		logger.Int("guesses", counts.Guesses))
	return json.NewEncoder(cmd.OutOrStdout()).Encode(counts)
}
