// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m ProgressModel, msg tea.Msg) (ProgressModel, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	next, ok := updated.(ProgressModel)
	require.True(t, ok)
	return next, cmd
}

func TestProgressModel_ProgressMsg(t *testing.T) {
	m := NewProgressModel("Installing")

	m, cmd := update(t, m, ProgressMsg{Progress: notify.Progress{
		Phase:    notify.PhaseDownloading,
		Percent:  30,
		Message:  "Downloading 1.2.0",
		Severity: notify.SeverityInfo,
	}})
	assert.Nil(t, cmd)
	assert.Equal(t, 30, m.Current().Percent)
	assert.Equal(t, notify.PhaseDownloading, m.Current().Phase)

	view := m.View()
	assert.Contains(t, view, "Installing")
	assert.Contains(t, view, "Downloading 1.2.0")
	assert.Contains(t, view, "downloading")
}

func TestProgressModel_WarningKeepsMessage(t *testing.T) {
	m := NewProgressModel("Updating")
	m, _ = update(t, m, ProgressMsg{Progress: notify.Progress{
		Phase: notify.PhasePreparing, Percent: 5, Message: "Reading state", Severity: notify.SeverityInfo,
	}})
	m, _ = update(t, m, ProgressMsg{Progress: notify.Progress{
		Phase: notify.PhasePreparing, Percent: 5, Message: "No release state found", Severity: notify.SeverityWarning,
	}})

	assert.Equal(t, "Reading state", m.Current().Message)
	assert.Equal(t, []string{"No release state found"}, m.Warnings())
	assert.Contains(t, m.View(), "No release state found")
}

func TestProgressModel_WarningsAreCapped(t *testing.T) {
	m := NewProgressModel("Updating")
	for i := 0; i < maxWarnings+3; i++ {
		m, _ = update(t, m, ProgressMsg{Progress: notify.Progress{
			Message: fmt.Sprintf("warning %d", i), Severity: notify.SeverityWarning,
		}})
	}

	require.Len(t, m.Warnings(), maxWarnings)
	assert.Equal(t, fmt.Sprintf("warning %d", maxWarnings+2), m.Warnings()[maxWarnings-1])
}

func TestProgressModel_Done(t *testing.T) {
	m := NewProgressModel("Installing")
	m, _ = update(t, m, ProgressMsg{Progress: notify.Progress{
		Phase: notify.PhaseFailed, Percent: 80, Message: "download failed", Severity: notify.SeverityError, Kind: "network_error",
	}})

	failure := errors.New("download failed")
	m, cmd := update(t, m, DoneMsg{Err: failure})
	assert.True(t, m.Done())
	assert.Equal(t, failure, m.Err())
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "network_error")
}

func TestProgressModel_InterruptWaitsForWorkflow(t *testing.T) {
	m := NewProgressModel("Installing")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd)
	assert.False(t, m.Done())
	assert.Contains(t, m.View(), "Waiting for the running workflow to finish")
}

func TestPlainReporter_ThrottlesByteProgress(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainReporter(&buf, 10)

	for _, pct := range []int{15, 16, 17, 19, 20, 21} {
		r.Observe(notify.Progress{Phase: notify.PhaseDownloading, Percent: pct, Message: "Downloading", Severity: notify.SeverityInfo})
	}
	r.Observe(notify.Progress{Phase: notify.PhaseDownloading, Percent: 21, Message: "slow mirror", Severity: notify.SeverityWarning})
	r.Observe(notify.Progress{Phase: notify.PhaseSucceeded, Percent: 100, Message: "Installed", Severity: notify.SeverityInfo})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "15%")
	assert.Contains(t, lines[1], "20%")
	assert.Contains(t, lines[2], "warning: ")
	assert.Contains(t, lines[3], "100%")
}

func TestPlainReporter_ErrorCarriesKind(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainReporter(&buf, 0)

	r.Observe(notify.Progress{Phase: notify.PhaseFailed, Percent: 40, Message: "boom", Severity: notify.SeverityError, Kind: "corrupt_archive"})
	assert.Contains(t, buf.String(), "(corrupt_archive)")
}

func TestDetectMode(t *testing.T) {
	assert.Equal(t, ModePlain, DetectMode(&bytes.Buffer{}, false))
	assert.Equal(t, ModePlain, DetectMode(&bytes.Buffer{}, true))
}
