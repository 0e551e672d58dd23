// Package config loads sandbox settings from an optional YAML file, SANDBOX_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/executor/docker"
	"github.com/sakif/code-sandbox/internal/language"
)

const (
	BackendLocal  = "local"
	BackendDocker = "docker"
)

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// APISecret enables bearer-token auth on /api when set.
	APISecret    string `mapstructure:"api_secret"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SandboxConfig struct {
	Backend        string        `mapstructure:"backend"`
	CompileTimeout time.Duration `mapstructure:"compile_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	KillGrace      time.Duration `mapstructure:"kill_grace"`
	MaxSourceBytes int           `mapstructure:"max_source_bytes"`
	MaxStdinBytes  int           `mapstructure:"max_stdin_bytes"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	MaxConcurrent  int64         `mapstructure:"max_concurrent"`
	WorkspaceRoot  string        `mapstructure:"workspace_root"`
}

type DockerConfig struct {
	Images      map[string]string `mapstructure:"images"`
	MemoryBytes int64             `mapstructure:"memory_bytes"`
	NanoCPUs    int64             `mapstructure:"nano_cpus"`
	Network     string            `mapstructure:"network"`
	User        string            `mapstructure:"user"`
	PoolSize    int               `mapstructure:"pool_size"`
}

// LanguageConfig declares an extra language from command templates. See
// language.NewTemplate for the placeholders.
type LanguageConfig struct {
	ID        string   `mapstructure:"id"`
	Extension string   `mapstructure:"extension"`
	Aliases   []string `mapstructure:"aliases"`
	Compile   []string `mapstructure:"compile"`
	Run       []string `mapstructure:"run"`
}

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Log       LogConfig        `mapstructure:"log"`
	Sandbox   SandboxConfig    `mapstructure:"sandbox"`
	Docker    DockerConfig     `mapstructure:"docker"`
	Languages []LanguageConfig `mapstructure:"languages"`
}

// Load reads the config file at path, or sandbox.yaml from . or
// $HOME/.sandbox when path is empty. A missing default file is not an error;
// a missing explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sandbox")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sandbox")
	}

	setDefaults(v)

	v.SetEnvPrefix("SANDBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is what most hosting platforms inject.
	_ = v.BindEnv("server.port", "SANDBOX_SERVER_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	limits := executor.DefaultLimits()
	d := docker.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.api_secret", "")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("storage.db_path", filepath.Join("data", "sandbox.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("sandbox.backend", BackendLocal)
	v.SetDefault("sandbox.compile_timeout", limits.CompileTimeout)
	v.SetDefault("sandbox.run_timeout", limits.RunTimeout)
	v.SetDefault("sandbox.kill_grace", 2*time.Second)
	v.SetDefault("sandbox.max_source_bytes", limits.MaxSourceBytes)
	v.SetDefault("sandbox.max_stdin_bytes", limits.MaxStdinBytes)
	v.SetDefault("sandbox.max_output_bytes", 1<<20)
	v.SetDefault("sandbox.max_concurrent", limits.MaxConcurrent)
	v.SetDefault("sandbox.workspace_root", "")

	v.SetDefault("docker.images", d.Images)
	v.SetDefault("docker.memory_bytes", d.MemoryLimit)
	v.SetDefault("docker.nano_cpus", int64(d.CPULimit*1e9))
	v.SetDefault("docker.network", d.Network)
	v.SetDefault("docker.user", d.User)
	v.SetDefault("docker.pool_size", d.PoolSize)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Sandbox.Backend {
	case BackendLocal, BackendDocker:
	default:
		errs = append(errs, fmt.Errorf("sandbox.backend must be %q or %q, got %q", BackendLocal, BackendDocker, c.Sandbox.Backend))
	}
	if c.Sandbox.CompileTimeout <= 0 || c.Sandbox.RunTimeout <= 0 {
		errs = append(errs, errors.New("sandbox timeouts must be positive"))
	}
	if c.Sandbox.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("sandbox.max_concurrent must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Limits converts the sandbox section to orchestrator limits.
func (c *Config) Limits() executor.Limits {
	return executor.Limits{
		CompileTimeout: c.Sandbox.CompileTimeout,
		RunTimeout:     c.Sandbox.RunTimeout,
		MaxSourceBytes: c.Sandbox.MaxSourceBytes,
		MaxStdinBytes:  c.Sandbox.MaxStdinBytes,
		MaxConcurrent:  c.Sandbox.MaxConcurrent,
	}
}

// WorkspaceRoot returns the directory workspaces are created under. The
// docker backend gets a dedicated directory since the whole root is
// bind-mounted into its containers.
func (c *Config) WorkspaceRoot() (string, error) {
	root := c.Sandbox.WorkspaceRoot
	if root == "" {
		if c.Sandbox.Backend != BackendDocker {
			return os.TempDir(), nil
		}
		root = filepath.Join(os.TempDir(), "code-sandbox")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace root: %w", err)
	}
	return abs, nil
}

// DockerRunnerConfig builds the docker backend configuration.
func (c *Config) DockerRunnerConfig(hostRoot string) docker.Config {
	d := docker.DefaultConfig()
	d.Images = c.Docker.Images
	d.HostRoot = hostRoot
	d.MemoryLimit = c.Docker.MemoryBytes
	d.CPULimit = float64(c.Docker.NanoCPUs) / 1e9
	d.Network = c.Docker.Network
	d.User = c.Docker.User
	d.PoolSize = c.Docker.PoolSize
	d.MaxOutputBytes = c.Sandbox.MaxOutputBytes
	d.KillGrace = c.Sandbox.KillGrace
	return d
}

// Registry returns the built-in languages extended with the configured ones.
// A configured language with a built-in id replaces it.
func (c *Config) Registry() (*language.Registry, error) {
	if len(c.Languages) == 0 {
		return language.Default(), nil
	}
	specs := make([]language.Spec, 0, len(c.Languages))
	for _, l := range c.Languages {
		tc, err := language.NewTemplate(l.Compile, l.Run)
		if err != nil {
			return nil, fmt.Errorf("language %q: %w", l.ID, err)
		}
		specs = append(specs, language.Spec{
			ID:        strings.ToLower(strings.TrimSpace(l.ID)),
			Extension: l.Extension,
			Aliases:   l.Aliases,
			Toolchain: tc,
		})
	}
	reg, err := language.Default().Extend(specs...)
	if err != nil {
		return nil, fmt.Errorf("configuring languages: %w", err)
	}
	return reg, nil
}
