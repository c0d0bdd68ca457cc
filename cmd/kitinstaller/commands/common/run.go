// SPDX-License-Identifier: Apache-2.0

package common

import (
	"context"
	"time"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/cenkalti/backoff/v4"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/internal/config"
	"github.com/serverkit/kitinstaller/internal/doctor"
	"github.com/serverkit/kitinstaller/internal/tui"
	"github.com/serverkit/kitinstaller/internal/workflows"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/internal/workflows/steps"
	"github.com/spf13/cobra"
)

const plainProgressStep = 10

// StartFunc queues a workflow on o.
type StartFunc func(ctx context.Context, o *workflows.Orchestrator) (<-chan workflows.Result, error)

// RunOptions controls how a workflow is run from the command line.
type RunOptions struct {
	Title      string
	NoProgress bool
	// Wait is how long a busy install folder is waited for. Zero fails right away.
	Wait       time.Duration
	ReportPath string
}

// RunWorkflow runs one workflow with a fresh orchestrator, renders its progress and returns its
// result. A rejected request is returned as a failed result.
func RunWorkflow(cmd *cobra.Command, opts RunOptions, start StartFunc) workflows.Result {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var result workflows.Result
	work := func(observer notify.Observer) error {
		o := workflows.NewOrchestrator(config.Get(), workflows.WithObserver(observer))
		defer o.Close()

		ch, err := startWithWait(ctx, o, opts.Wait, start)
		if err != nil {
			result = workflows.Result{Phase: notify.PhaseFailed, Err: err}
			return err
		}
		result = <-ch
		return result.Err
	}

	if tui.DetectMode(out, opts.NoProgress) == tui.ModeTUI {
		if err := tui.RunWithWork(out, tui.NewProgressModel(opts.Title), work); err != nil && result.Err == nil {
			logx.As().Warn().Err(err).Msg("Progress display failed")
		}
	} else {
		_ = work(tui.NewPlainReporter(out, plainProgressStep).Observe)
	}

	return result
}

// startWithWait retries start while the install folder is busy, up to wait.
func startWithWait(ctx context.Context, o *workflows.Orchestrator, wait time.Duration, start StartFunc) (<-chan workflows.Result, error) {
	if wait <= 0 {
		return start(ctx, o)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = wait

	var ch <-chan workflows.Result
	op := func() error {
		var err error
		ch, err = start(ctx, o)
		if err != nil && !errorx.IsOfType(err, workflows.WorkflowBusyError) {
			return backoff.Permanent(err)
		}
		if err != nil {
			logx.As().Info().Err(err).Msg("Install folder is busy, waiting")
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return ch, nil
}

// CheckResult writes the workflow reports of res and exits through the doctor when res failed.
func CheckResult(cmd *cobra.Command, res workflows.Result, reportPath string) {
	report := combinedReport(res)
	if reportPath != "" && report != nil {
		if err := steps.PrintWorkflowReport(report, reportPath); err != nil {
			logx.As().Warn().Err(err).Str("report_path", reportPath).Msg("Failed to save workflow report")
		} else {
			logx.As().Info().Str("report_path", reportPath).Msg("Workflow report is saved")
		}
	}

	if res.Err != nil {
		doctor.CheckReportErr(cmd.Context(), report, res.Err)
	}
}

// combinedReport nests the reports of every workflow of res under one report.
func combinedReport(res workflows.Result) *automa.Report {
	switch len(res.Reports) {
	case 0:
		return nil
	case 1:
		return res.Reports[0]
	}

	status := automa.StatusSuccess
	if !res.Succeeded() {
		status = automa.StatusFailed
	}
	return &automa.Report{
		Id:          res.Workflow,
		Status:      status,
		StepReports: res.Reports,
		Metadata: map[string]string{
			"runId": res.RunID,
			"root":  res.Root,
		},
	}
}
