// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
)

// RunWithWork starts a bubbletea program rendering model, runs workFn in a goroutine with an
// observer that forwards progress to the program and blocks until both have finished.
func RunWithWork(out io.Writer, model ProgressModel, workFn func(observer notify.Observer) error) error {
	p := tea.NewProgram(model, tea.WithOutput(out))

	done := make(chan error, 1)
	go func() {
		err := workFn(func(u notify.Progress) {
			p.Send(ProgressMsg{Progress: u})
		})
		p.Send(DoneMsg{Err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return <-done
}
