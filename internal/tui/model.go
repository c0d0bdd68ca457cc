// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
)

const (
	barWidth    = 40
	maxWarnings = 5
)

// ProgressModel renders the progress of a single workflow run: a bar, the current phase and message
// and the most recent warnings.
type ProgressModel struct {
	title    string
	bar      progress.Model
	current  notify.Progress
	warnings []string
	done     bool
	// interrupted is set when the user asked to quit; the running workflow cannot be cancelled and
	// is still waited for.
	interrupted bool
	err         error
}

func NewProgressModel(title string) ProgressModel {
	return ProgressModel{
		title: title,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		current: notify.Progress{
			Phase:    notify.PhaseIdle,
			Severity: notify.SeverityInfo,
		},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return nil
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressMsg:
		m.apply(msg.Progress)
		return m, nil

	case DoneMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.interrupted = true
		}
	}
	return m, nil
}

func (m *ProgressModel) apply(p notify.Progress) {
	if p.Severity == notify.SeverityWarning {
		m.warnings = append(m.warnings, p.Message)
		if len(m.warnings) > maxWarnings {
			m.warnings = m.warnings[len(m.warnings)-maxWarnings:]
		}
		// warnings keep the last informational message on screen
		p.Message = m.current.Message
	}
	m.current = p
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n\n")

	b.WriteString(m.bar.ViewAs(float64(m.current.Percent) / 100))
	fmt.Fprintf(&b, "  %s\n", PhaseStyle(m.current.Phase).Render(string(m.current.Phase)))

	if m.current.Message != "" {
		b.WriteString(SeverityStyle(m.current.Severity).Render(m.current.Message))
		b.WriteByte('\n')
	}

	for _, w := range m.warnings {
		b.WriteString(SeverityStyle(notify.SeverityWarning).Render("! " + w))
		b.WriteByte('\n')
	}

	if m.done && m.current.Phase == notify.PhaseFailed && m.current.Kind != "" {
		b.WriteString(SeverityStyle(notify.SeverityError).Render("error kind: " + m.current.Kind))
		b.WriteByte('\n')
	}

	if m.interrupted && !m.done {
		b.WriteString(HintStyle.Render("Waiting for the running workflow to finish..."))
		b.WriteByte('\n')
	}

	return b.String()
}

// Current returns the last progress update received.
func (m ProgressModel) Current() notify.Progress {
	return m.current
}

func (m ProgressModel) Warnings() []string {
	return m.warnings
}

func (m ProgressModel) Done() bool {
	return m.done
}

// Err returns the failure the workflow finished with.
func (m ProgressModel) Err() error {
	return m.err
}
