package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/code-sandbox/internal/mcptool"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the code_run tool over MCP stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing one tool,
code_run(language, code, stdin?). Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	sb, err := newSandbox(cfg, logger)
	if err != nil {
		return fmt.Errorf("setting up sandbox: %w", err)
	}
	defer sb.Close()

	runner := mcptool.NewCodeRunner(sb.exec, sb.registry, logger)
	return mcptool.ServeStdio(mcptool.NewServer(runner, version))
}
