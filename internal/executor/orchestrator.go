package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/semaphore"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/executor/process"
	"github.com/sakif/code-sandbox/internal/language"
	"github.com/sakif/code-sandbox/internal/workspace"
)

// maxLanguageLen bounds the language field before it reaches the registry.
const maxLanguageLen = 32

// Limits bounds a single execution.
type Limits struct {
	CompileTimeout time.Duration
	RunTimeout     time.Duration
	MaxSourceBytes int
	MaxStdinBytes  int
	// MaxConcurrent is the number of executions allowed to hold a workspace
	// at once. Further requests queue until a slot frees or their context ends.
	MaxConcurrent int64
}

// DefaultLimits provides sensible defaults for an interactive playground.
func DefaultLimits() Limits {
	return Limits{
		CompileTimeout: 15 * time.Second,
		RunTimeout:     10 * time.Second,
		MaxSourceBytes: 64 * 1024,
		MaxStdinBytes:  64 * 1024,
		MaxConcurrent:  8,
	}
}

// Orchestrator implements Executor: validate, stage a workspace, compile if
// the language needs it, run, and clean up.
type Orchestrator struct {
	registry   *language.Registry
	workspaces *workspace.Manager
	runner     process.Runner
	limits     Limits
	slots      *semaphore.Weighted
	logger     *slog.Logger
}

var _ Executor = (*Orchestrator)(nil)

// NewOrchestrator wires the registry, workspace manager and runner together.
// Zero fields in limits fall back to DefaultLimits.
func NewOrchestrator(registry *language.Registry, workspaces *workspace.Manager, runner process.Runner, limits Limits, logger *slog.Logger) *Orchestrator {
	limits = limits.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry:   registry,
		workspaces: workspaces,
		runner:     runner,
		limits:     limits,
		slots:      semaphore.NewWeighted(limits.MaxConcurrent),
		logger:     logger,
	}
}

// Registry returns the languages this orchestrator accepts.
func (o *Orchestrator) Registry() *language.Registry { return o.registry }

// Limits returns the effective limits.
func (o *Orchestrator) Limits() Limits { return o.limits }

// Execute runs req to completion. See Executor for the error contract.
func (o *Orchestrator) Execute(ctx context.Context, req ExecutionRequest) (result *ExecutionResult, err error) {
	spec, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	id := xid.New().String()
	logger := o.logger.With(
		slog.String("execution_id", id),
		slog.String("language", spec.ID),
	)

	if err := o.slots.Acquire(ctx, 1); err != nil {
		logger.Warn("gave up waiting for an execution slot", slog.String("error", err.Error()))
		return infrastructureResult(id, start, PhaseSetup, "execution canceled while queued"), nil
	}
	defer o.slots.Release(1)

	// Nothing below may take the process down.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("execution panicked", slog.Any("panic", r))
			result, err = infrastructureResult(id, start, PhaseSetup, "internal sandbox error"), nil
		}
	}()

	logger.Debug("execution started", slog.Bool("compiles", spec.Compiles()))

	var out *ExecutionResult
	werr := o.workspaces.With(req.Code, spec.Extension, func(ws workspace.Workspace) error {
		out = o.pipeline(ctx, logger, spec, ws, req.Stdin)
		return nil
	})
	if werr != nil {
		if out == nil {
			logger.Error("failed to prepare workspace", slog.String("error", werr.Error()))
			return infrastructureResult(id, start, PhaseSetup, "failed to prepare workspace"), nil
		}
		// The program already finished; its result stands.
		logger.Error("failed to clean up workspace", slog.String("error", werr.Error()))
	}

	out.ID = id
	out.Duration = time.Since(start)

	logger.Info("execution finished",
		slog.String("phase", string(out.Phase)),
		slog.Int("status", out.StatusCode),
		slog.Bool("timed_out", out.TimedOut),
		slog.Duration("duration", out.Duration),
	)

	return out, nil
}

func (o *Orchestrator) validate(req ExecutionRequest) (language.Spec, error) {
	lang := strings.TrimSpace(req.Language)
	switch {
	case lang == "":
		return language.Spec{}, apperror.ValidationFailed("language", "language is required")
	case len(lang) > maxLanguageLen:
		return language.Spec{}, apperror.ValidationFailed("language", "language is too long")
	case strings.TrimSpace(req.Code) == "":
		return language.Spec{}, apperror.ValidationFailed("code", "code is required")
	case len(req.Code) > o.limits.MaxSourceBytes:
		return language.Spec{}, apperror.ValidationFailed("code",
			fmt.Sprintf("code exceeds %d bytes", o.limits.MaxSourceBytes))
	case len(req.Stdin) > o.limits.MaxStdinBytes:
		return language.Spec{}, apperror.ValidationFailed("input",
			fmt.Sprintf("input exceeds %d bytes", o.limits.MaxStdinBytes))
	}
	return o.registry.Resolve(lang)
}

// pipeline runs the compile (when needed) and run phases inside ws.
func (o *Orchestrator) pipeline(ctx context.Context, logger *slog.Logger, spec language.Spec, ws workspace.Workspace, stdin string) *ExecutionResult {
	if spec.Compiles() {
		compiled := o.runner.Run(ctx, process.Command{
			Args:     spec.Toolchain.CompileCommand(ws.SourcePath, ws.OutputPath),
			Dir:      ws.Dir,
			Timeout:  o.limits.CompileTimeout,
			Language: spec.ID,
		})
		if compiled.TimedOut || compiled.Canceled || compiled.ExitCode != 0 {
			logger.Debug("compilation failed",
				slog.Int("exit_code", compiled.ExitCode),
				slog.Bool("timed_out", compiled.TimedOut),
			)
			return compileFailure(compiled, o.limits.CompileTimeout)
		}
	}

	ran := o.runner.Run(ctx, process.Command{
		Args:     spec.Toolchain.RunCommand(ws.SourcePath, ws.OutputPath),
		Dir:      ws.Dir,
		Stdin:    stdin,
		Timeout:  o.limits.RunTimeout,
		Language: spec.ID,
	})
	return runResult(ran, o.limits.RunTimeout)
}

// compileFailure reports compiler diagnostics. Some compilers print errors
// on stdout, so stdout is appended after stderr.
func compileFailure(res process.Result, limit time.Duration) *ExecutionResult {
	diagnostics := res.Stderr
	if res.Stdout != "" {
		if diagnostics != "" && !strings.HasSuffix(diagnostics, "\n") {
			diagnostics += "\n"
		}
		diagnostics += res.Stdout
	}

	out := &ExecutionResult{
		Stderr:     diagnostics,
		StatusCode: res.ExitCode,
		Phase:      PhaseCompile,
		TimedOut:   res.TimedOut,
		Truncated:  res.Truncated,
	}
	switch {
	case res.TimedOut:
		out.StatusCode = StatusTimeout
		out.Stderr += fmt.Sprintf("\nCompilation timed out after %s.\n", limit)
	case res.Canceled:
		out.StatusCode = StatusInfrastructure
		out.Stderr += "\nCompilation canceled.\n"
	}
	return out
}

func runResult(res process.Result, limit time.Duration) *ExecutionResult {
	out := &ExecutionResult{
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		StatusCode: res.ExitCode,
		Phase:      PhaseRun,
		TimedOut:   res.TimedOut,
		Truncated:  res.Truncated,
	}
	switch {
	case res.TimedOut:
		out.StatusCode = StatusTimeout
		out.Stderr += fmt.Sprintf("\nExecution timed out after %s.\n", limit)
	case res.Canceled:
		out.StatusCode = StatusInfrastructure
		out.Stderr += "\nExecution canceled.\n"
	}
	return out
}

func infrastructureResult(id string, start time.Time, phase Phase, message string) *ExecutionResult {
	return &ExecutionResult{
		ID:         id,
		Stderr:     message,
		StatusCode: StatusInfrastructure,
		Phase:      phase,
		Duration:   time.Since(start),
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.CompileTimeout <= 0 {
		l.CompileTimeout = d.CompileTimeout
	}
	if l.RunTimeout <= 0 {
		l.RunTimeout = d.RunTimeout
	}
	if l.MaxSourceBytes <= 0 {
		l.MaxSourceBytes = d.MaxSourceBytes
	}
	if l.MaxStdinBytes <= 0 {
		l.MaxStdinBytes = d.MaxStdinBytes
	}
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = d.MaxConcurrent
	}
	return l
}
