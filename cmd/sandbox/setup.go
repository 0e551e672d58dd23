package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sakif/code-sandbox/internal/config"
	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/executor/docker"
	"github.com/sakif/code-sandbox/internal/executor/process"
	"github.com/sakif/code-sandbox/internal/handler"
	"github.com/sakif/code-sandbox/internal/language"
	"github.com/sakif/code-sandbox/internal/workspace"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs always go to stderr: stdout
// carries program output for `run` and the protocol for `mcp`.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

// sandbox is the assembled execution stack.
type sandbox struct {
	exec      *executor.Orchestrator
	registry  *language.Registry
	available handler.AvailabilityFunc
	backend   string
	docker    *docker.Runner // nil on the local backend
}

func (s *sandbox) Close() error {
	if s.docker != nil {
		return s.docker.Close()
	}
	return nil
}

// newSandbox wires registry, workspaces and the configured runner into an
// orchestrator.
func newSandbox(cfg *config.Config, logger *slog.Logger) (*sandbox, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	root, err := cfg.WorkspaceRoot()
	if err != nil {
		return nil, err
	}

	s := &sandbox{registry: registry, backend: cfg.Sandbox.Backend}

	var runner process.Runner
	switch cfg.Sandbox.Backend {
	case config.BackendDocker:
		dcfg := cfg.DockerRunnerConfig(root)
		if dcfg.User == "" {
			// Workspaces are created 0700 by this process, so the
			// container must run as the same uid to read them.
			dcfg.User = fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
		}
		r, err := docker.New(dcfg, logger)
		if err != nil {
			return nil, err
		}
		s.docker = r
		runner = r
		s.available = func(spec language.Spec) bool {
			return dcfg.Images[spec.ID] != ""
		}
	default:
		runner = process.NewLocal(cfg.Sandbox.MaxOutputBytes, cfg.Sandbox.KillGrace, logger)
		s.available = handler.LocalAvailability
	}

	s.exec = executor.NewOrchestrator(registry, workspace.NewManager(root), runner, cfg.Limits(), logger)
	return s, nil
}
