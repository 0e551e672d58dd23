package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
)

const (
	pullTimeout   = 10 * time.Minute
	createBackoff = time.Second
	pidsLimit     = int64(128)
)

// Pool manages a pool of pre-warmed containers for one image.
//
// Containers are single-use: a caller takes one with Get, runs one command in
// it and removes it. The manager goroutine replaces what was taken, so at most
// PoolSize idle containers exist per image.
type Pool struct {
	cli    dockerClient
	config Config
	image  string
	logger *slog.Logger

	containers chan string
	ctx        context.Context // canceled by Stop
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once

	mu      sync.Mutex
	lastErr error
}

// NewPool initializes a new container pool wrapper.
func NewPool(cli dockerClient, cfg Config, image string, logger *slog.Logger) *Pool {
	// The manager holds one created container while it waits to hand it
	// over, so the channel carries one fewer than PoolSize.
	capacity := max(cfg.PoolSize-1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cli:        cli,
		config:     cfg,
		image:      image,
		logger:     logger.With(slog.String("image", image)),
		containers: make(chan string, capacity),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start pulls the image and begins filling the pool in the background.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting docker container pool manager", slog.Int("poolSize", p.config.PoolSize))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop shuts down the manager and cleans up all pre-warmed containers.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down docker container pool")
		p.cancel()
		p.wg.Wait()

		// Drain channel and remove surviving containers
		for {
			select {
			case id := <-p.containers:
				p.removeContainer(id)
			default:
				return
			}
		}
	})
}

// Get returns a ready-to-use container ID from the pool. It blocks until one
// is available, ctx is canceled or AcquireTimeout passes.
func (p *Pool) Get(ctx context.Context) (string, error) {
	timer := time.NewTimer(p.config.AcquireTimeout)
	defer timer.Stop()

	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("no %s container available after %s: %w", p.image, p.config.AcquireTimeout, p.err())
	case <-p.ctx.Done():
		return "", errors.New("container pool is shut down")
	}
}

func (p *Pool) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastErr == nil {
		return errors.New("pool is still warming up")
	}
	return p.lastErr
}

func (p *Pool) setErr(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

// manager pulls the image once, then keeps the pool at capacity.
func (p *Pool) manager() {
	defer p.wg.Done()

	for {
		err := p.pullImage()
		if err == nil {
			break
		}
		p.setErr(err)
		p.logger.Error("failed to pull image", slog.String("error", err.Error()))
		if !p.sleep(5 * createBackoff) {
			return
		}
	}

	for {
		id, err := p.createContainer()
		if err != nil {
			p.setErr(err)
			p.logger.Error("failed to create pre-warmed container", slog.String("error", err.Error()))
			if !p.sleep(createBackoff) {
				return
			}
			continue
		}
		p.setErr(nil)

		// Hand over, or delete if shutting down
		select {
		case p.containers <- id:
		case <-p.ctx.Done():
			p.removeContainer(id)
			return
		}
	}
}

// sleep waits d and reports whether the pool is still running.
func (p *Pool) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *Pool) pullImage() error {
	ctx, cancel := context.WithTimeout(p.ctx, pullTimeout)
	defer cancel()

	p.logger.Info("ensuring docker image is available")
	reader, err := p.cli.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", p.image, err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pulling %s: %w", p.image, err)
	}
	p.logger.Info("docker image is ready")
	return nil
}

// createContainer starts a container running `sleep infinity` with the
// workspace root mounted.
func (p *Pool) createContainer() (string, error) {
	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	pids := pidsLimit
	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(p.config.Network),
		Resources: container.Resources{
			Memory:    p.config.MemoryLimit,
			NanoCPUs:  int64(p.config.CPULimit * 1e9),
			PidsLimit: &pids,
		},
		AutoRemove:     false,
		ReadonlyRootfs: true,
		Binds:          []string{p.config.HostRoot + ":" + p.config.ContainerRoot},
		Tmpfs:          map[string]string{"/tmp": "rw,exec,size=256m"},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:      p.image,
		Cmd:        []string{"sleep", "infinity"},
		User:       p.config.User,
		WorkingDir: p.config.ContainerRoot,
		Env:        containerEnv,
		Labels:     map[string]string{"code-sandbox": "pool"},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return "", fmt.Errorf("ContainerStart failed: %w", err)
	}

	return resp.ID, nil
}

// removeContainer force removes a container by ID, killing anything running
// in it.
func (p *Pool) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil {
		p.logger.Error("failed to remove container", slog.String("id", id), slog.String("error", err.Error()))
	}
}
