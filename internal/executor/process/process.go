// Package process runs one external command under a wall-clock limit and
// captures its output.
//
// A Runner never returns a Go error: every outcome, including "the binary
// does not exist", is described by a Result. ExitCode -1 is reserved for
// "could not be started" and "killed by the supervisor".
package process

import (
	"context"
	"time"
)

// ExitKilled is the exit code for a process that never started or that the
// supervisor had to kill.
const ExitKilled = -1

// Command is one invocation: argv, working directory, stdin and limit.
type Command struct {
	Args    []string
	Dir     string
	Stdin   string
	Timeout time.Duration
	// Language is informational for the local runner; container runners use
	// it to pick an image.
	Language string
}

// Result is the outcome of running a Command.
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	TimedOut  bool
	Canceled  bool
	Truncated bool
	Duration  time.Duration
}

// Runner launches commands. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) Result

func (f RunnerFunc) Run(ctx context.Context, cmd Command) Result { return f(ctx, cmd) }
