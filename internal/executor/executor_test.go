package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"
)

func TestRunStatus(t *testing.T) {
	e := New(context.Background(), nil)
	var stdout bytes.Buffer
	cmd := exec.Command("/bin/sh", "-c", "echo hello; exit 3")
	cmd.Stdout = &stdout
	err := e.Run(cmd)
	status, ok := Status(err)
	assert.Assert(t, ok)
	assert.Equal(t, status, 3)
	assert.Equal(t, stdout.String(), "hello\n")

	status, ok = Status(nil)
	assert.Assert(t, ok)
	assert.Equal(t, status, 0)
}

func TestLines(t *testing.T) {
	e := New(context.Background(), nil)
	var lines []string
	err := e.Lines(exec.Command("/bin/sh", "-c", "printf 'one\\ntwo:\\nthree'"), func(l string) {
		lines = append(lines, l)
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, lines, []string{"one\n", "two:\n", "three"})
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(ctx, nil)
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := e.Run(exec.Command("/bin/sh", "-c", "sleep 30"))
	assert.Assert(t, err != nil)
	assert.Assert(t, strings.Contains(err.Error(), "aborted"), err.Error())
	assert.Assert(t, time.Since(start) < 10*time.Second)
}

func TestInteractiveInterruptStillReportsStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(ctx, nil).WithInteractive()
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	cmd := exec.Command("/bin/sh", "-c", "trap 'exit 7' INT; sleep 30 & wait")
	err := e.Run(cmd)
	status, ok := Status(err)
	assert.Assert(t, ok, "%v", err)
	assert.Equal(t, status, 7)
}

// grandchild returns a shell command whose nested shell writes its pid to
// the returned file and then becomes a foreground sleep.
func grandchild(t *testing.T) (*exec.Cmd, string) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	script := `/bin/sh -c "echo \$\$ > \"\$0\"; exec sleep 30" "$1"; exit $?`
	return exec.Command("/bin/sh", "-c", script, "sh", pidFile), pidFile
}

func readPid(pidFile string) (int, bool) {
	data, err := os.ReadFile(pidFile)
	if err != nil || !strings.HasSuffix(string(data), "\n") {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	return pid, err == nil
}

// processGone also accepts zombies, which wait for a reaper we do not control.
func processGone(pid int) poll.Check {
	return func(t poll.LogT) poll.Result {
		stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
		if os.IsNotExist(err) {
			return poll.Success()
		}
		if err != nil {
			return poll.Error(err)
		}
		if i := strings.LastIndexByte(string(stat), ')'); i >= 0 && strings.HasPrefix(string(stat[i:]), ") Z") {
			return poll.Success()
		}
		return poll.Continue("process %d still running", pid)
	}
}

func TestCancelKillsGrandchildren(t *testing.T) {
	for _, interactive := range []bool{false, true} {
		t.Run(fmt.Sprintf("interactive=%v", interactive), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			e := New(ctx, nil)
			if interactive {
				e = e.WithInteractive()
			}
			e.WaitDelay = time.Second
			cmd, pidFile := grandchild(t)
			cmd.Stdin = strings.NewReader("")

			go func() {
				deadline := time.Now().Add(10 * time.Second)
				for time.Now().Before(deadline) {
					if _, ok := readPid(pidFile); ok {
						break
					}
					time.Sleep(20 * time.Millisecond)
				}
				cancel()
			}()
			start := time.Now()
			err := e.Run(cmd)
			assert.Assert(t, err != nil)
			assert.Assert(t, time.Since(start) < 20*time.Second)

			pid, ok := readPid(pidFile)
			assert.Assert(t, ok, "sleep never started")
			poll.WaitOn(t, processGone(pid), poll.WithTimeout(5*time.Second))
		})
	}
}
