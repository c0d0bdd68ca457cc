// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/serverkit/kitinstaller/pkg/software"
)

// Phase is a state of a workflow run. Phases only move forward.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePreparing   Phase = "preparing"
	PhaseDownloading Phase = "downloading"
	PhaseExtracting  Phase = "extracting"
	PhaseFinalizing  Phase = "finalizing"
	PhaseSucceeded   Phase = "succeeded"
	PhaseFailed      Phase = "failed"
)

var phaseOrder = map[Phase]int{
	PhaseIdle:        0,
	PhasePreparing:   1,
	PhaseDownloading: 2,
	PhaseExtracting:  3,
	PhaseFinalizing:  4,
	PhaseSucceeded:   5,
	PhaseFailed:      5,
}

// Terminal reports whether no further transition can follow p.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Progress is one update sent to the observer of a workflow run.
type Progress struct {
	RunID    string    `json:"runId" yaml:"runId"`
	Workflow string    `json:"workflow" yaml:"workflow"`
	Phase    Phase     `json:"phase" yaml:"phase"`
	Percent  int       `json:"percent" yaml:"percent"`
	Message  string    `json:"message" yaml:"message"`
	Severity Severity  `json:"severity" yaml:"severity"`
	Kind     string    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Time     time.Time `json:"time" yaml:"time"`
}

// Observer receives progress updates. It is called from the worker running the workflow and must
// hand the update off to its own loop instead of blocking.
type Observer func(Progress)

// Tracker keeps the phase and percentage of one run and forwards every change to the observer.
//
// Percentages never decrease and phases never move backwards: an update that would do either is
// raised to the current value. Once the run is Succeeded or Failed further updates are dropped.
type Tracker struct {
	mu       sync.Mutex
	ctx      context.Context
	runID    string
	workflow string
	observer Observer
	current  Progress
}

func NewTracker(ctx context.Context, workflow string, observer Observer) *Tracker {
	return &Tracker{
		ctx:      ctx,
		runID:    RunID(ctx),
		workflow: workflow,
		observer: observer,
		current: Progress{
			Phase:    PhaseIdle,
			Severity: SeverityInfo,
		},
	}
}

// Advance moves the run to phase at percent.
func (t *Tracker) Advance(phase Phase, percent int, format string, args ...interface{}) {
	t.emit(phase, percent, SeverityInfo, "", fmt.Sprintf(format, args...))
}

// Warn reports a non-fatal condition without changing phase or percentage.
func (t *Tracker) Warn(format string, args ...interface{}) {
	t.mu.Lock()
	phase, percent := t.current.Phase, t.current.Percent
	t.mu.Unlock()

	t.emit(phase, percent, SeverityWarning, "", fmt.Sprintf(format, args...))
}

// Span returns a byte progress callback that maps written/total onto [from, to] within phase.
// An update is only emitted when the whole percentage changes.
func (t *Tracker) Span(phase Phase, from, to int, label string) software.ProgressFunc {
	last := -1
	return func(written, total int64) {
		if total <= 0 || to <= from {
			return
		}
		p := from + int(int64(to-from)*written/total)
		if p > to {
			p = to
		}
		if p == last {
			return
		}
		last = p
		t.Advance(phase, p, "%s (%d%%)", label, 100*written/total)
	}
}

// Succeed ends the run at 100%.
func (t *Tracker) Succeed(format string, args ...interface{}) {
	t.emit(PhaseSucceeded, 100, SeverityInfo, "", fmt.Sprintf(format, args...))
}

// Fail ends the run at its last percentage with the error kind and message of err.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	percent := t.current.Percent
	t.mu.Unlock()

	msg, kind := "workflow failed", software.KindInternal
	if err != nil {
		msg, kind = err.Error(), software.Kind(err)
	}
	t.emit(PhaseFailed, percent, SeverityError, kind, msg)
}

// Current returns the last emitted update.
func (t *Tracker) Current() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *Tracker) emit(phase Phase, percent int, severity Severity, kind, msg string) {
	t.mu.Lock()
	if t.current.Phase.Terminal() {
		t.mu.Unlock()
		return
	}

	if phaseOrder[phase] < phaseOrder[t.current.Phase] {
		phase = t.current.Phase
	}
	if percent < t.current.Percent {
		percent = t.current.Percent
	}
	if percent > 100 {
		percent = 100
	}

	p := Progress{
		RunID:    t.runID,
		Workflow: t.workflow,
		Phase:    phase,
		Percent:  percent,
		Message:  msg,
		Severity: severity,
		Kind:     kind,
		Time:     time.Now(),
	}
	t.current = p
	t.mu.Unlock()

	if h := As().Progress; h != nil {
		h(t.ctx, p)
	}
	if t.observer != nil {
		t.observer(p)
	}
}
