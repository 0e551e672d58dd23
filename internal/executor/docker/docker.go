// Package docker is a process.Runner that runs every command inside a
// throwaway container, taken from a per-image pool of pre-warmed ones.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/code-sandbox/internal/executor/process"
)

// Runner implements process.Runner using Docker.
type Runner struct {
	cli    dockerClient
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	pools  map[string]*Pool
	closed bool
}

var _ process.Runner = (*Runner)(nil)

// New creates a Docker runner connected to the daemon from the environment.
// Pools start lazily, on the first command for each image.
func New(cfg Config, logger *slog.Logger) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	r, err := newRunner(cli, cfg, logger)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return r, nil
}

func newRunner(cli dockerClient, cfg Config, logger *slog.Logger) (*Runner, error) {
	if cfg.HostRoot == "" {
		return nil, errors.New("docker: workspace root is required")
	}
	root, err := filepath.Abs(cfg.HostRoot)
	if err != nil {
		return nil, fmt.Errorf("docker: resolving workspace root: %w", err)
	}
	cfg.HostRoot = root

	d := DefaultConfig()
	if cfg.ContainerRoot == "" {
		cfg.ContainerRoot = d.ContainerRoot
	}
	if cfg.Network == "" {
		cfg.Network = d.Network
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = d.PoolSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = d.AcquireTimeout
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = d.KillGrace
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		cli:    cli,
		config: cfg,
		logger: logger,
		pools:  make(map[string]*Pool),
	}, nil
}

// Warm starts the pools for the given languages ahead of the first request.
func (r *Runner) Warm(languages ...string) {
	for _, lang := range languages {
		if _, err := r.pool(lang); err != nil {
			r.logger.Warn("not warming pool", slog.String("language", lang), slog.String("error", err.Error()))
		}
	}
}

// Close shuts down all pools and the docker client.
func (r *Runner) Close() error {
	r.mu.Lock()
	r.closed = true
	pools := r.pools
	r.pools = map[string]*Pool{}
	r.mu.Unlock()

	for _, p := range pools {
		p.Stop()
	}
	return r.cli.Close()
}

// pool returns the pool for lang's image, starting it on first use.
// Languages sharing an image share a pool.
func (r *Runner) pool(lang string) (*Pool, error) {
	img, ok := r.config.Images[lang]
	if !ok || img == "" {
		return nil, fmt.Errorf("no docker image configured for language %q", lang)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("docker runner is closed")
	}
	p, ok := r.pools[img]
	if !ok {
		p = NewPool(r.cli, r.config, img, r.logger)
		p.Start()
		r.pools[img] = p
	}
	return p, nil
}

// Run executes cmd in a fresh container. Host paths under HostRoot in the
// argv and working directory are rewritten to their mount point.
func (r *Runner) Run(ctx context.Context, cmd process.Command) process.Result {
	start := time.Now()
	logger := r.logger.With(slog.String("language", cmd.Language))

	fail := func(err error) process.Result {
		logger.Error("docker run failed", slog.String("error", err.Error()))
		return process.Result{
			ExitCode: process.ExitKilled,
			Stderr:   "docker: " + err.Error(),
			Duration: time.Since(start),
		}
	}

	if len(cmd.Args) == 0 {
		return fail(errors.New("empty command"))
	}

	pool, err := r.pool(cmd.Language)
	if err != nil {
		return fail(err)
	}
	containerID, err := pool.Get(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to get container from pool: %w", err))
	}

	// Always ensure we clean up the container that we acquired
	remove := sync.OnceFunc(func() { pool.removeContainer(containerID) })
	defer remove()

	args := make([]string, len(cmd.Args))
	for i, arg := range cmd.Args {
		args[i] = r.containerPath(arg)
	}

	execResp, err := r.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		AttachStdin:  cmd.Stdin != "",
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   r.containerPath(cmd.Dir),
		Env:          containerEnv,
		Cmd:          args,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create exec: %w", err))
	}

	attachResp, err := r.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return fail(fmt.Errorf("failed to attach to exec: %w", err))
	}
	defer attachResp.Close()

	if cmd.Stdin != "" {
		go func() {
			_, _ = io.Copy(attachResp.Conn, strings.NewReader(cmd.Stdin))
			_ = attachResp.CloseWrite()
		}()
	}

	stdout := process.NewCappedBuffer(r.config.MaxOutputBytes)
	stderr := process.NewCappedBuffer(r.config.MaxOutputBytes)

	done := make(chan struct{})
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, _ = stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		close(done)
	}()

	var expired <-chan time.Time
	if cmd.Timeout > 0 {
		timer := time.NewTimer(cmd.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	res := process.Result{}

	select {
	case <-done:
		inspectResp, err := r.cli.ContainerExecInspect(context.WithoutCancel(ctx), execResp.ID)
		if err != nil {
			res.ExitCode = process.ExitKilled
			stderr.Note("\ndocker: failed to inspect exec: " + err.Error() + "\n")
		} else {
			res.ExitCode = inspectResp.ExitCode
		}
	case <-expired:
		res.TimedOut = true
		res.ExitCode = process.ExitKilled
		remove()
		r.drain(done)
	case <-ctx.Done():
		res.Canceled = true
		res.ExitCode = process.ExitKilled
		remove()
		r.drain(done)
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Truncated() || stderr.Truncated()
	res.Duration = time.Since(start)
	return res
}

// drain waits for the output copier once the container is gone.
func (r *Runner) drain(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(r.config.KillGrace):
		r.logger.Warn("output stream still open after container removal")
	}
}

// containerPath maps a path under HostRoot to the same path under
// ContainerRoot. Anything else is returned unchanged.
func (r *Runner) containerPath(p string) string {
	if p == "" {
		return r.config.ContainerRoot
	}
	rel, err := filepath.Rel(r.config.HostRoot, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || !filepath.IsAbs(p) {
		return p
	}
	return filepath.ToSlash(filepath.Join(r.config.ContainerRoot, rel))
}
