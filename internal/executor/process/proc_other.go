//go:build !unix

package process

import (
	"os"
	"os/exec"
)

// Without process groups only the direct child can be killed.
func isolate(*exec.Cmd) {}

func kill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func exitStatus(state *os.ProcessState) int {
	return state.ExitCode()
}
