package executor

import (
	"context"
	"time"
)

// Phase names the pipeline step that produced a result.
type Phase string

const (
	PhaseSetup   Phase = "SETUP"
	PhaseCompile Phase = "COMPILE"
	PhaseRun     Phase = "RUN"
)

const (
	// StatusTimeout is reported when a phase exceeded its wall-clock limit,
	// following the convention of timeout(1).
	StatusTimeout = 124
	// StatusInfrastructure is reported when the sandbox itself failed: the
	// workspace could not be prepared, a toolchain binary could not be
	// started, or the caller went away mid-run.
	StatusInfrastructure = -1
)

// ExecutionRequest is one program to compile (if needed) and run.
type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Stdin    string `json:"input,omitempty"`
}

// ExecutionResult represents the output and status of the code execution.
//
// A program that exits 0 but writes to stderr is still a success; callers
// must look at StatusCode, not at Stderr.
type ExecutionResult struct {
	ID         string        `json:"id"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr,omitempty"`
	StatusCode int           `json:"statusCode"`
	Phase      Phase         `json:"phase"`
	TimedOut   bool          `json:"timedOut"`
	Truncated  bool          `json:"truncated"`
	Duration   time.Duration `json:"duration"`
}

// Succeeded reports whether the program ran to completion with exit code 0.
func (r *ExecutionResult) Succeeded() bool {
	return r.Phase == PhaseRun && r.StatusCode == 0 && !r.TimedOut
}

// Executor represents the core interface for running code in an isolated environment.
//
// Execute returns an error only when the request itself is invalid
// (apperror.ErrValidation) or names an unknown language
// (apperror.ErrUnsupportedLanguage). Compile errors, runtime errors,
// timeouts and sandbox failures are all reported through the result.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
