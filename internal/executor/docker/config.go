package docker

import (
	"time"
)

// Config holds the configuration for Docker execution.
type Config struct {
	// Images maps a canonical language id to the image that provides its
	// toolchain. Languages without an entry cannot run on this backend.
	Images map[string]string
	// HostRoot is the host directory under which workspaces are created. It is
	// bind-mounted into every container at ContainerRoot.
	HostRoot      string
	ContainerRoot string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// Network is the container network mode. "none" disables networking.
	Network string
	// User runs the commands as that user inside the container. Empty keeps the
	// image default; the user must be able to write to HostRoot.
	User string
	// PoolSize is the number of pre-warmed containers to maintain per image.
	PoolSize int
	// AcquireTimeout bounds how long a run waits for a warm container.
	AcquireTimeout time.Duration
	// MaxOutputBytes caps stdout and stderr. <= 0 means unlimited.
	MaxOutputBytes int
	// KillGrace bounds how long to wait for the output stream after the
	// container is removed on timeout.
	KillGrace time.Duration
}

// DefaultConfig provides sensible defaults for the built-in languages.
func DefaultConfig() Config {
	return Config{
		Images: map[string]string{
			"python":     "python:3.12-alpine",
			"javascript": "node:22-alpine",
			"dart":       "dart:stable",
			"ruby":       "ruby:3.3-alpine",
			"php":        "php:8.3-cli-alpine",
			"go":         "golang:1.23-alpine",
			"c":          "gcc:14",
			"cpp":        "gcc:14",
			"java":       "eclipse-temurin:21-jdk",
			"rust":       "rust:1-slim",
		},
		ContainerRoot: "/workspace",
		// 256 MB memory limit; compilers need more than the interpreters.
		MemoryLimit: 256 * 1024 * 1024,
		// 0.5 CPU shares
		CPULimit:       0.5,
		Network:        "none",
		PoolSize:       1,
		AcquireTimeout: 30 * time.Second,
		MaxOutputBytes: 1 << 20,
		KillGrace:      2 * time.Second,
	}
}

// containerEnv gives toolchains a writable home on a read-only rootfs.
var containerEnv = []string{
	"HOME=/tmp",
	"GOCACHE=/tmp/.cache/go-build",
	"GOPATH=/tmp/go",
}
