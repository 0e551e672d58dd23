//go:build unix

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// isolate puts the child in a new process group whose id equals its pid.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// kill sends SIGKILL to the child's whole process group. ESRCH (group
// already empty) is expected and ignored.
func kill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// exitStatus reports 128+signal for a child terminated by a signal it did
// not receive from us (segfault, abort), like a POSIX shell does.
func exitStatus(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
