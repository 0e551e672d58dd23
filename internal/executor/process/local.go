package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultKillGrace bounds how long Wait may block on output pipes after the
// child exits or is killed. Descendants that escaped with a copy of stdout
// would otherwise keep Wait blocked forever.
const DefaultKillGrace = 2 * time.Second

// Local runs commands as child processes of the host.
//
// Each child gets its own process group so that a timeout kill (SIGKILL to
// the group) also takes down anything it forked. The group is killed again
// after every run to reap stragglers left in the background.
//
// Local provides no privilege separation: children run as the host user.
type Local struct {
	// MaxOutputBytes caps each of stdout and stderr. <= 0 means unlimited.
	MaxOutputBytes int
	// KillGrace, if zero, is DefaultKillGrace.
	KillGrace time.Duration
	// Env is appended to the host environment.
	Env    []string
	Logger *slog.Logger
}

var _ Runner = (*Local)(nil)

// NewLocal returns a Local runner.
func NewLocal(maxOutputBytes int, killGrace time.Duration, logger *slog.Logger) *Local {
	return &Local{
		MaxOutputBytes: maxOutputBytes,
		KillGrace:      killGrace,
		Logger:         logger,
	}
}

// Run launches cmd and blocks until it exits, its timeout fires or ctx is
// done, whichever happens first.
func (l *Local) Run(ctx context.Context, c Command) Result {
	start := time.Now()
	logger := l.logger()

	if len(c.Args) == 0 {
		return Result{ExitCode: ExitKilled, Stderr: "process: empty command"}
	}

	stdout := NewCappedBuffer(l.MaxOutputBytes)
	stderr := NewCappedBuffer(l.MaxOutputBytes)

	cmd := exec.Command(c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = l.killGrace()
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	// Stdin is written once and closed; a nil Stdin reads from /dev/null.
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	isolate(cmd)

	if err := cmd.Start(); err != nil {
		logger.Warn("process failed to start",
			slog.String("binary", c.Args[0]),
			slog.String("error", err.Error()),
		)
		return Result{
			ExitCode: ExitKilled,
			Stderr:   err.Error(),
			Duration: time.Since(start),
		}
	}

	// Process exit races the timer and ctx. The loser is cleaned up: the
	// timer is stopped on return, the process group is killed otherwise.
	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var expired <-chan time.Time
	if c.Timeout > 0 {
		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var res Result
	var err error

	select {
	case err = <-waitErr:
	case <-expired:
		res.TimedOut = true
		kill(cmd)
		err = l.reap(waitErr)
	case <-ctx.Done():
		res.Canceled = true
		kill(cmd)
		err = l.reap(waitErr)
	}

	// The leader is gone; anything still in its group is an orphan.
	kill(cmd)

	switch {
	case res.TimedOut || res.Canceled:
		res.ExitCode = ExitKilled
	case err == nil:
		res.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			res.ExitCode = exitStatus(exitErr.ProcessState)
		case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// Exited cleanly but a descendant held the pipes open.
			res.ExitCode = exitStatus(cmd.ProcessState)
		default:
			res.ExitCode = ExitKilled
			stderr.Note(fmt.Sprintf("\nprocess: %v\n", err))
		}
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Truncated() || stderr.Truncated()
	res.Duration = time.Since(start)

	if res.TimedOut {
		logger.Info("process killed after timeout",
			slog.String("binary", c.Args[0]),
			slog.Duration("timeout", c.Timeout),
		)
	}

	return res
}

var errUnreaped = errors.New("process did not exit after SIGKILL")

// reap waits for the wait goroutine after a kill, but never longer than the
// kill grace plus a second. A process stuck in uninterruptible sleep is
// abandoned rather than blocking the caller.
func (l *Local) reap(waitErr <-chan error) error {
	select {
	case err := <-waitErr:
		return err
	case <-time.After(l.killGrace() + time.Second):
		l.logger().Error("process unreaped after kill")
		return errUnreaped
	}
}

func (l *Local) killGrace() time.Duration {
	if l.KillGrace > 0 {
		return l.KillGrace
	}
	return DefaultKillGrace
}

func (l *Local) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
