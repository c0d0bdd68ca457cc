// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"io"
	"sync"

	"github.com/serverkit/kitinstaller/internal/workflows/notify"
)

// PlainReporter writes progress as lines of text. Byte progress within a phase is only written every
// step percent so logs stay short.
type PlainReporter struct {
	mu    sync.Mutex
	w     io.Writer
	step  int
	last  notify.Progress
	wrote bool
}

func NewPlainReporter(w io.Writer, step int) *PlainReporter {
	if step <= 0 {
		step = 10
	}
	return &PlainReporter{w: w, step: step}
}

// Observe implements notify.Observer.
func (r *PlainReporter) Observe(p notify.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wrote && p.Severity == notify.SeverityInfo && p.Phase == r.last.Phase && !p.Phase.Terminal() &&
		p.Percent/r.step == r.last.Percent/r.step {
		return
	}
	r.last = p
	r.wrote = true

	line := fmt.Sprintf("[%3d%%] %-11s %s", p.Percent, p.Phase, p.Message)
	switch p.Severity {
	case notify.SeverityWarning:
		line = SeverityStyle(p.Severity).Render("warning: " + line)
	case notify.SeverityError:
		line = SeverityStyle(p.Severity).Render(fmt.Sprintf("%s (%s)", line, p.Kind))
	}
	_, _ = fmt.Fprintln(r.w, line)
}
