package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/huishype/huishype/internal/config"
	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/model"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate a fair market value from a file of guesses",
	Long: `Runs the estimation engine on a YAML (or JSON) document and prints the result as JSON:

  woz_value: 400000
  asking_price: 450000
  guesses:
    - {price: 410000, karma: 12}
    - {price: 395000}`,
	RunE: runEstimate,
}

var estimateFile string

func init() {
	estimateCmd.Flags().StringVarP(&estimateFile, "file", "f", "", "Path to the input document, or - for stdin (required)")
	if err := estimateCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Sprintf("failed to mark file flag as required: %v", err))
	}
	rootCmd.AddCommand(estimateCmd)
}

// estimateInput is the document read by the estimate command.
type estimateInput struct {
	WOZValue    *float64            `yaml:"woz_value"`
	AskingPrice *float64            `yaml:"asking_price"`
	Guesses     []fmv.WeightedGuess `yaml:"guesses"`
}

func runEstimate(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var data []byte
	if estimateFile == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(estimateFile)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", estimateFile, err)
	}

	res, err := estimateDocument(cfg, data)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// estimateDocument parses an input document and runs the configured engine on it.
func estimateDocument(cfg *config.Config, data []byte) (fmv.Result, error) {
	var in estimateInput
	if err := yaml.Unmarshal(data, &in); err != nil {
		return fmv.Result{}, fmt.Errorf("failed to parse input: %w", err)
	}

	for i, g := range in.Guesses {
		if !model.ValidPrice(g.GuessedPrice) {
			return fmv.Result{}, fmt.Errorf("guess #%d: %w, got %v", i, model.ErrInvalidPrice, g.GuessedPrice)
		}
	}
	for name, v := range map[string]*float64{"woz_value": in.WOZValue, "asking_price": in.AskingPrice} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmv.Result{}, fmt.Errorf("%s must be finite, got %v", name, *v)
		}
	}
	return newEstimator(cfg).Estimate(in.Guesses, in.WOZValue, in.AskingPrice), nil
}
