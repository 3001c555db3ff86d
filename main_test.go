//go:build unix

package main

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jesseduffield/kill"
	"github.com/marcodamonte/concurrency/signal-deadlock/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// childEnv makes the test binary behave as the real program, so these tests
// exercise real SIGUSR1 delivery to a real process.
const childEnv = "SIGLOCK_TEST_CHILD"

func TestMain(m *testing.M) {
	if os.Getenv(childEnv) == "1" {
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type child struct {
	cmd   *exec.Cmd
	lines chan string
	exit  chan error
}

func startChild(t *testing.T, configYAML string) *child {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(),
		childEnv+"=1",
		config.EnvConfigPath+"="+path,
		"LOG_LEVEL=error",
	)
	kill.PrepareForChildren(cmd)

	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	c := &child{cmd: cmd, lines: make(chan string, 16), exit: make(chan error, 1)}
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
		close(c.lines)
		c.exit <- cmd.Wait()
	}()

	t.Cleanup(func() {
		_ = kill.Kill(cmd)
	})
	return c
}

func (c *child) expectLine(t *testing.T, prefix string, within time.Duration) string {
	t.Helper()
	select {
	case line, ok := <-c.lines:
		require.True(t, ok, "stdout closed while waiting for %q", prefix)
		require.True(t, strings.HasPrefix(line, prefix), "got %q, want %q", line, prefix)
		return line
	case <-time.After(within):
		t.Fatalf("no %q within %s", prefix, within)
		return ""
	}
}

func (c *child) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case line, ok := <-c.lines:
		if ok {
			t.Fatalf("unexpected output %q", line)
		}
		t.Fatal("process exited")
	case <-time.After(d):
	}
}

func (c *child) expectExit(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case err := <-c.exit:
		assert.NoError(t, err)
		assert.Equal(t, 0, c.cmd.ProcessState.ExitCode())
	case <-time.After(within):
		t.Fatalf("process did not exit within %s", within)
	}
}

const baseConfig = "hold: 400ms\ndebugAddr: \"\"\ncolor: false\n"

func TestProcessWithoutSignal(t *testing.T) {
	t.Parallel()

	c := startChild(t, baseConfig)

	c.expectLine(t, "locked mutex", 5*time.Second)
	instructions := c.expectLine(t, "run `kill -s SIGUSR1 ", time.Second)
	assert.Contains(t, instructions, strconv.Itoa(c.cmd.Process.Pid))
	c.expectLine(t, "unlocked mutex", 2*time.Second)
	c.expectExit(t, 2*time.Second)
}

// TestProcessDeadlocksOnSignalDuringHold is scenario B against a real
// process: the handler runs, the unlock line never comes, and the process
// has to be killed from outside.
func TestProcessDeadlocksOnSignalDuringHold(t *testing.T) {
	t.Parallel()

	c := startChild(t, baseConfig)

	c.expectLine(t, "locked mutex", 5*time.Second)
	c.expectLine(t, "run `kill -s SIGUSR1 ", time.Second)
	require.NoError(t, c.cmd.Process.Signal(syscall.SIGUSR1))

	c.expectLine(t, "received signal", 2*time.Second)
	c.expectSilence(t, time.Second) // well past the 400ms hold

	// A second signal does not help.
	require.NoError(t, c.cmd.Process.Signal(syscall.SIGUSR1))
	c.expectSilence(t, 300*time.Millisecond)

	require.NoError(t, kill.Kill(c.cmd))
	select {
	case err := <-c.exit:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("process survived kill")
	}
}

// TestProcessMaskedHoldDefersHandler shows the hazard disappearing when
// delivery is masked for the hold: the handler runs after the unlock.
func TestProcessMaskedHoldDefersHandler(t *testing.T) {
	t.Parallel()

	c := startChild(t, baseConfig+"maskDuringHold: true\n")

	c.expectLine(t, "locked mutex", 5*time.Second)
	c.expectLine(t, "run `kill -s SIGUSR1 ", time.Second)
	require.NoError(t, c.cmd.Process.Signal(syscall.SIGUSR1))

	c.expectLine(t, "unlocked mutex", 2*time.Second)
	c.expectLine(t, "received signal", time.Second)
	c.expectExit(t, 2*time.Second)
}

// TestProcessSelfSignalDeadlocks uses selfSignalAfter, so no outside party
// needs to send anything.
func TestProcessSelfSignalDeadlocks(t *testing.T) {
	t.Parallel()

	c := startChild(t, "hold: 2s\nselfSignalAfter: 300ms\ndebugAddr: \"\"\ncolor: false\n")

	c.expectLine(t, "locked mutex", 5*time.Second)
	c.expectLine(t, "run `kill -s SIGUSR1 ", time.Second)
	c.expectLine(t, "received signal", 3*time.Second)
	c.expectSilence(t, 2500*time.Millisecond)
}

func TestProcessRejectsBadConfig(t *testing.T) {
	t.Parallel()

	c := startChild(t, "signal: SIGBOGUS\n")

	select {
	case err := <-c.exit:
		require.Error(t, err)
		assert.Equal(t, 1, c.cmd.ProcessState.ExitCode())
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}
