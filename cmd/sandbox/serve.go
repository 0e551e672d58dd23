package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/code-sandbox/internal/server"
)

var (
	portFlag int
	warmFlag bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sandbox HTTP API",
	Long: `Start the HTTP server. API endpoints are under /api; /healthz is open.

Examples:
  sandbox serve
  sandbox serve --port 9090
  SANDBOX_SANDBOX_BACKEND=docker sandbox serve --warm`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&warmFlag, "warm", false, "pre-pull images and fill container pools at startup (docker backend)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}
	logger := newLogger(cfg.Log)

	sb, err := newSandbox(cfg, logger)
	if err != nil {
		return fmt.Errorf("setting up sandbox: %w", err)
	}
	defer func() {
		if err := sb.Close(); err != nil {
			logger.Warn("closing sandbox", slog.String("error", err.Error()))
		}
	}()

	if warmFlag && sb.docker != nil {
		var ids []string
		for _, spec := range sb.registry.Languages() {
			ids = append(ids, spec.ID)
		}
		sb.docker.Warm(ids...)
	}

	srv, err := server.New(server.Config{
		Port:           cfg.Server.Port,
		DBPath:         cfg.Storage.DBPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APISecret:      cfg.Server.APISecret,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Backend:        sb.backend,
		Available:      sb.available,
	}, sb.exec, sb.registry, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Start(cmd.Context())
}
