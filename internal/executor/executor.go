// Package executor runs external commands with context driven cleanup.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Executor provides a consistent interface for executing commands.
type Executor struct {
	Context context.Context // The context to use for cancellation
	Logger  hclog.Logger
	// Interactive commands may own the terminal. On cancellation their
	// process group is interrupted, then killed after WaitDelay.
	Interactive bool
	WaitDelay   time.Duration
}

// New returns a non-interactive executor bound to ctx.
func New(ctx context.Context, logger hclog.Logger) *Executor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Executor{Context: ctx, Logger: logger, WaitDelay: 10 * time.Second}
}

// WithInteractive returns a copy of e for terminal-attached commands.
func (e *Executor) WithInteractive() *Executor {
	c := *e
	c.Interactive = true
	return &c
}

// build copies cmd into a command running in its own process group. The
// returned tty is the terminal the group was put in the foreground of, or
// -1.
func (e *Executor) build(cmd *exec.Cmd) (finalCmd *exec.Cmd, tty int) {
	finalCmd = exec.Command(cmd.Path, cmd.Args[1:]...)
	finalCmd.Dir = cmd.Dir
	finalCmd.Env = cmd.Env

	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr

	tty = -1
	finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if f, ok := cmd.Stdin.(*os.File); ok && e.Interactive && term.IsTerminal(int(f.Fd())) {
		tty = int(f.Fd())
		finalCmd.SysProcAttr.Foreground = true
		finalCmd.SysProcAttr.Ctty = tty
	}
	return finalCmd, tty
}

// watch signals the process group pgid once the context is done: a kill for
// plain commands, an interrupt then a kill after WaitDelay for interactive
// ones. The returned stop must be called after the leader was reaped; when
// the context was cancelled it also kills whatever is left of the group.
func (e *Executor) watch(pgid int) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		select {
		case <-done:
			return
		case <-e.Context.Done():
		}
		if !e.Interactive {
			_ = unix.Kill(-pgid, unix.SIGKILL)
			return
		}
		_ = unix.Kill(-pgid, unix.SIGINT)
		timer := time.NewTimer(e.WaitDelay)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			e.Logger.Debug("command ignored the interrupt, killing it", "pgid", pgid)
			_ = unix.Kill(-pgid, unix.SIGKILL)
		}
	}()
	return func() {
		close(done)
		<-finished
		if e.Context.Err() != nil {
			_ = unix.Kill(-pgid, unix.SIGKILL)
		}
	}
}

// reclaimTerminal puts the caller's process group back in the foreground of
// tty after a foreground child exited.
func reclaimTerminal(tty int) {
	signal.Ignore(syscall.SIGTTOU)
	defer signal.Reset(syscall.SIGTTOU)
	_ = unix.IoctlSetPointerInt(tty, unix.TIOCSPGRP, unix.Getpgrp())
}

// Run executes cmd and waits for it. Stdio defaults to the process's own.
func (e *Executor) Run(cmd *exec.Cmd) error {
	if cmd.Err != nil {
		return cmd.Err
	}
	if err := e.Context.Err(); err != nil {
		return fmt.Errorf("command aborted: %w", err)
	}
	finalCmd, tty := e.build(cmd)
	e.Logger.Debug("running command", "args", finalCmd.Args, "dir", finalCmd.Dir)

	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}
	stop := e.watch(finalCmd.Process.Pid)
	waitErr := finalCmd.Wait()
	stop()
	if tty >= 0 {
		reclaimTerminal(tty)
	}
	if waitErr != nil && e.Context.Err() != nil && !e.Interactive {
		return fmt.Errorf("command aborted: %w", e.Context.Err())
	}
	return waitErr
}

// Lines runs cmd and hands each line of its standard output to fn as it is
// produced.
func (e *Executor) Lines(cmd *exec.Cmd, fn func(line string)) error {
	if cmd.Err != nil {
		return cmd.Err
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanLines(pr, fn)
	}()
	err := e.Run(cmd)
	pw.Close()
	<-done
	return err
}

// Status extracts the exit status of a finished command. Signal deaths are
// reported as the negated signal number. ok is false when err is not an exit
// status at all.
func Status(err error) (status int, ok bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0, false
	}
	if ws, isWait := exitErr.Sys().(syscall.WaitStatus); isWait && ws.Signaled() {
		return -int(ws.Signal()), true
	}
	return exitErr.ExitCode(), true
}
