package process

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alive reports whether pid exists and is not a zombie. Zombies count as
// dead: without a reaping init in the test container they linger.
func alive(pid int) bool {
	raw, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// Format: pid (comm) S ...; comm may contain spaces.
	stat := string(raw)
	idx := strings.LastIndexByte(stat, ')')
	if idx < 0 || idx+2 >= len(stat) {
		return false
	}
	return stat[idx+2] != 'Z'
}

func TestLocal_ReapsBackgroundDescendants(t *testing.T) {
	runner := newTestLocal()

	for _, tc := range []struct {
		name    string
		script  string
		timeout time.Duration
	}{
		{"after normal exit", `sleep 30 & echo $!`, 10 * time.Second},
		{"after timeout", `sleep 30 & echo $!; while :; do :; done`, 300 * time.Millisecond},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := runner.Run(context.Background(), Command{Args: sh(tc.script), Timeout: tc.timeout})

			pid, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
			require.NoError(t, err, "stdout: %q", res.Stdout)

			assert.Eventually(t, func() bool { return !alive(pid) }, 2*time.Second, 20*time.Millisecond,
				"background child %d still running", pid)
		})
	}
}
