package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"videoscribe/internal/middleware"
)

var tokenCmd = &cobra.Command{
	Use:     "token [subject]",
	Short:   "Mint a bearer token for the job API",
	Example: `  JWT_SECRET=... videoscribe token alice --ttl 720h`,
	Args:    exactlyOneReference,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JWTSecret == "" {
			return usageError{errors.New("JWT_SECRET is not set")}
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := middleware.NewJWTAuth(cfg.JWTSecret).GenerateToken(args[0], ttl)
		if err != nil {
			return usageError{err}
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")
	rootCmd.AddCommand(tokenCmd)
}
