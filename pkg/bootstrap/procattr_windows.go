// SPDX-License-Identifier: Apache-2.0

//go:build windows

package bootstrap

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// setHiddenProcAttr starts the child without a console window, in its own process group.
func setHiddenProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW | windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminate has no graceful equivalent for a windowless process, so it is the same as kill.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
