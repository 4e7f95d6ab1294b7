package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/idea-forge/internal/server"
)

var tokenCommand = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint a bearer token for the status API",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenCmd,
}

var tokenHours int

func init() {
	tokenCommand.Flags().IntVar(&tokenHours, "hours", 0, "Token lifetime in hours (default: server.jwt_expiration_hours)")
	rootCmd.AddCommand(tokenCommand)
}

func runTokenCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("hours") {
		cfg.Server.JWTExpirationHours = tokenHours
	}

	jwtCfg, err := cfg.Server.JWT()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if jwtCfg == nil {
		return fmt.Errorf("%s or server.jwt_secret is required to mint tokens", envJWTSecret)
	}

	token, err := server.NewJWTService(jwtCfg).GenerateToken(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", time.Now().Add(jwtCfg.Expiration()).Format(time.RFC3339))
	return nil
}
