// SPDX-License-Identifier: Apache-2.0

package tui

import "github.com/serverkit/kitinstaller/internal/workflows/notify"

// ProgressMsg carries one progress update of the running workflow.
type ProgressMsg struct {
	Progress notify.Progress
}

// DoneMsg signals that the workflow has returned. Err is its failure, if any.
type DoneMsg struct {
	Err error
}
