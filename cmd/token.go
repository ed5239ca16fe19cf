package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/huishype/huishype/internal/adapters/http/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a user",
	RunE:  runToken,
}

var tokenUser string

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "User id (UUID); a new one is generated when empty")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	userID := uuid.New()
	if tokenUser != "" {
		if userID, err = uuid.Parse(tokenUser); err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
	}

	svc, err := auth.NewService(cfg.JWTSecret, jwtExpiration(cfg))
	if err != nil {
		return err
	}
	token, err := svc.GenerateToken(userID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
