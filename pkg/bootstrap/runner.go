// SPDX-License-Identifier: Apache-2.0

// Package bootstrap launches a freshly installed server executable once so it can generate its
// first-run files, then asks it to stop.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/pkg/software"
)

const (
	DefaultGracePeriod = 5 * time.Second
	// exitWait bounds how long we wait for the process to leave after a terminate request.
	exitWait = 5 * time.Second
)

var (
	executableProperty = errorx.RegisterPrintableProperty("executable")
)

// Runner starts an executable hidden from the user, waits for a grace period and terminates it.
type Runner struct {
	grace    time.Duration
	exitWait time.Duration
	args     []string
}

type Option func(*Runner)

func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.grace = d
		}
	}
}

// WithArgs sets the arguments passed to the executable.
func WithArgs(args ...string) Option {
	return func(r *Runner) {
		r.args = args
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		grace:    DefaultGracePeriod,
		exitWait: exitWait,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// command builds the bootstrap process. Its standard streams stay nil so they are bound to the
// null device and a grandchild holding them open cannot block Wait.
func (r *Runner) command(executablePath, workingDir string) *exec.Cmd {
	cmd := exec.Command(executablePath, r.args...)
	cmd.Dir = workingDir
	setHiddenProcAttr(cmd)
	return cmd
}

// Run launches executablePath with workingDir as its current directory, lets it run for the grace
// period and then asks it to terminate.
//
// A failure to start is a LaunchError. Problems while stopping the process are logged and tolerated.
// Cancelling ctx shortens the grace period; the process is still terminated before Run returns.
func (r *Runner) Run(ctx context.Context, executablePath, workingDir string) error {
	info, err := os.Stat(executablePath)
	if err != nil {
		return newLaunchError(err, executablePath)
	}
	if info.IsDir() {
		return newLaunchError(errors.New("path is a directory"), executablePath)
	}

	cmd := r.command(executablePath, workingDir)

	logx.As().Debug().
		Str("exec_cmd", cmd.String()).
		Str("exec_dir", workingDir).
		Msg("Launching server executable for first-run bootstrap")

	if err := cmd.Start(); err != nil {
		return newLaunchError(err, executablePath)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	timer := time.NewTimer(r.grace)
	defer timer.Stop()

	select {
	case err := <-exited:
		// exited on its own within the grace period; its exit code does not matter
		logx.As().Debug().
			Err(err).
			Int("exec_pid", cmd.Process.Pid).
			Msg("Server executable exited before the grace period elapsed")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	r.stop(cmd, exited)
	return nil
}

func (r *Runner) stop(cmd *exec.Cmd, exited <-chan error) {
	pid := cmd.Process.Pid

	if err := terminate(cmd); err != nil {
		logx.As().Warn().
			Int("exec_pid", pid).
			Err(err).
			Msg("Error occurred while requesting the process to terminate")
	}

	select {
	case <-exited:
		logx.As().Debug().Int("exec_pid", pid).Msg("Server executable terminated")
		return
	case <-time.After(r.exitWait):
	}

	logx.As().Debug().Int("exec_pid", pid).Msg("Force terminating server executable")
	if err := kill(cmd); err != nil {
		logx.As().Warn().
			Int("exec_pid", pid).
			Err(err).
			Msg("Error occurred while terminating the process")
		return
	}

	select {
	case <-exited:
	case <-time.After(r.exitWait):
		logx.As().Warn().Int("exec_pid", pid).Msg("Server executable did not exit after kill")
	}
}

func newLaunchError(cause error, executablePath string) *errorx.Error {
	return software.LaunchError.New("failed to launch server executable '%s'", executablePath).
		WithProperty(executableProperty, executablePath).
		WithUnderlyingErrors(cause)
}
