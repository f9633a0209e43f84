package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"stagehand/internal/services"
)

// Spec describes one process to run.
type Spec struct {
	Binary string
	Args   []string
	Dir    string
}

// Result describes how a run ended.
type Result struct {
	ExitCode        int
	Stderr          string
	StderrTruncated bool
	TimedOut        bool
	Interrupted     bool
	Duration        time.Duration
}

// Runner executes a Spec.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ProcessRunner runs tools as child processes in their own process group.
type ProcessRunner struct {
	Timeout     time.Duration
	Grace       time.Duration
	StderrLimit int

	// command builds the child; tests swap in a helper process.
	command func(name string, args ...string) *exec.Cmd
	// signal delivers sig to the process group led by pid.
	signal func(pid int, sig syscall.Signal) error
}

// NewProcessRunner returns a runner with the given limits.
func NewProcessRunner(timeout, grace time.Duration, stderrLimit int) *ProcessRunner {
	return &ProcessRunner{
		Timeout:     timeout,
		Grace:       grace,
		StderrLimit: stderrLimit,
		command:     exec.Command,
		signal:      signalGroup,
	}
}

func signalGroup(pid int, sig syscall.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Run starts spec and waits for it. A run that outlives Timeout, or whose ctx
// ends first, is terminated: SIGTERM to the group, then SIGKILL once Grace
// has passed. The returned error wraps ErrTimeout, ErrExternalTool, or the
// context error; Result is filled in either way.
func (r *ProcessRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	stderr := newTailBuffer(r.StderrLimit)
	cmd := r.command(spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = nil
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Bounds Wait when a descendant left the group but kept stderr open.
	cmd.WaitDelay = r.Grace + time.Second

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, services.Wrap(services.ErrExternalTool, "worker", "start tool",
			fmt.Sprintf("start %s", spec.Binary), err)
	}
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(r.Timeout)
	defer timer.Stop()

	finish := func(waitErr error) Result {
		res := Result{
			ExitCode:        exitCode(cmd, waitErr),
			Stderr:          stderr.String(),
			StderrTruncated: stderr.Truncated(),
			Duration:        time.Since(started),
		}
		return res
	}

	select {
	case waitErr := <-done:
		res := finish(waitErr)
		if res.ExitCode != 0 {
			return res, services.Wrap(services.ErrExternalTool, "worker", "run tool",
				fmt.Sprintf("%s exited with code %d", spec.Binary, res.ExitCode), nil)
		}
		return res, nil
	case <-timer.C:
		res := finish(r.terminate(pid, done))
		res.TimedOut = true
		return res, services.Wrap(services.ErrTimeout, "worker", "run tool",
			fmt.Sprintf("%s exceeded the %s timeout and was terminated", spec.Binary, r.Timeout), nil)
	case <-ctx.Done():
		res := finish(r.terminate(pid, done))
		res.Interrupted = true
		return res, fmt.Errorf("%s interrupted: %w", spec.Binary, ctx.Err())
	}
}

// terminate sends SIGTERM, waits up to Grace, then sends SIGKILL and waits for
// the process to be reaped.
func (r *ProcessRunner) terminate(pid int, done <-chan error) error {
	_ = r.signal(pid, unix.SIGTERM)
	grace := time.NewTimer(r.Grace)
	defer grace.Stop()
	select {
	case err := <-done:
		return err
	case <-grace.C:
	}
	_ = r.signal(pid, unix.SIGKILL)
	return <-done
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr == nil {
		return 0
	}
	return -1
}
