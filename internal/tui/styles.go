// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true)
	HintStyle  = lipgloss.NewStyle().Faint(true)

	severityStyles = map[notify.Severity]lipgloss.Style{
		notify.SeverityInfo:    lipgloss.NewStyle(),
		notify.SeverityWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		notify.SeverityError:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}

	phaseStyles = map[notify.Phase]lipgloss.Style{
		notify.PhaseIdle:        lipgloss.NewStyle().Faint(true),
		notify.PhasePreparing:   lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		notify.PhaseDownloading: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		notify.PhaseExtracting:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		notify.PhaseFinalizing:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		notify.PhaseSucceeded:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		notify.PhaseFailed:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// SeverityStyle returns the style messages of severity s are rendered with.
func SeverityStyle(s notify.Severity) lipgloss.Style {
	if st, ok := severityStyles[s]; ok {
		return st
	}
	return lipgloss.NewStyle()
}

func PhaseStyle(p notify.Phase) lipgloss.Style {
	if st, ok := phaseStyles[p]; ok {
		return st
	}
	return lipgloss.NewStyle()
}
