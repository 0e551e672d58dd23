package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/code-sandbox/internal/auth"
)

var tokenTTLFlag time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <client-id>",
	Short: "Mint an API token for a client",
	Long: `Print a signed bearer token for client-id. Requires server.api_secret
(SANDBOX_SERVER_API_SECRET) to match the server's.

Example:
  sandbox token ci-runner --ttl 168h`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTLFlag, "ttl", auth.DefaultTTL, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.APISecret == "" {
		return errors.New("server.api_secret is not set; tokens would not be checked")
	}

	tokens, err := auth.NewTokenService(cfg.Server.APISecret)
	if err != nil {
		return err
	}
	token, err := tokens.Generate(args[0], tokenTTLFlag)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
