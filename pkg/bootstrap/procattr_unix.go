// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package bootstrap

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setHiddenProcAttr runs the child in its own process group so the whole group can be signalled.
func setHiddenProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func terminate(cmd *exec.Cmd) error {
	return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
}

func kill(cmd *exec.Cmd) error {
	return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}
