// Command sandbox runs untrusted programs in short-lived, resource-limited
// workspaces. It serves the HTTP API, runs one-off files from the shell and
// exposes the sandbox as an MCP tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Multi-language code execution sandbox",
	Long: `sandbox compiles and runs source code in a fresh workspace per request,
with wall-clock limits, output caps and forced cleanup.

Configuration comes from sandbox.yaml (or --config), SANDBOX_* environment
variables and a .env file in the working directory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal; a broken one is not.
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default: ./sandbox.yaml or $HOME/.sandbox/sandbox.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "sandbox:", err)
	os.Exit(1)
}
