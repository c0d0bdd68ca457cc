// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"path/filepath"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/serverkit/kitinstaller/internal/layout"
	"github.com/serverkit/kitinstaller/internal/state"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
)

// VerifyLayout checks that every path of the layout exists and is non-empty.
func VerifyLayout(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(VerifyLayoutStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if err := run.Layout.Verify(); err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			run.Tracker.Advance(notify.PhaseFinalizing, percent, "Verified install layout")
			return automa.StepSuccessReport(stp.Id())
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Verifying install layout")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Install layout verification failed")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Install layout verified successfully")
		})
}

// PersistInstall writes the release state of the root, remembers the root as the last install path
// and records the layout manifest. Nothing already placed on disk is undone when a write fails.
func PersistInstall(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(PersistInstallStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			root := run.Layout.Root
			rs := state.ReleaseState{
				ComponentVersion: run.Component.Tag,
				InstallerVersion: run.InstallerVersion,
			}
			if err := state.WriteReleaseState(root, rs); err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			if err := run.ConfigStore.Write(root); err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			m := layout.NewManifest(run.Layout, rs.ComponentVersion, rs.InstallerVersion)
			if run.KeptArchive != "" {
				if rel, err := filepath.Rel(root, run.KeptArchive); err == nil {
					m.Archive = filepath.ToSlash(rel)
				}
			}
			if err := layout.WriteManifest(root, m); err != nil {
				logx.As().Warn().Err(err).Str("install_root", root).Msg("Failed to write layout manifest")
			}

			run.Tracker.Advance(notify.PhaseFinalizing, percent, "Recorded version %s", rs.ComponentVersion)
			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				ConfiguredByThisStep: "true",
				MetaVersion:          rs.ComponentVersion,
				MetaPath:             state.ReleaseStatePath(root),
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Recording install state")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to record install state")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Install state recorded successfully")
		})
}

// PersistComponentUpdate records the new component version. The installer version of the record is
// left as it was: a staged installer only counts once it runs.
func PersistComponentUpdate(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(PersistComponentStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			root := run.Layout.Root
			rs := state.ReleaseState{ComponentVersion: run.Component.Tag}
			previous := ""
			if run.Prior != nil {
				rs.InstallerVersion = run.Prior.InstallerVersion
				previous = run.Prior.ComponentVersion
			}

			if err := state.WriteReleaseState(root, rs); err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			if err := layout.RecordComponentUpdate(root, rs.ComponentVersion); err != nil {
				logx.As().Warn().Err(err).Str("install_root", root).Msg("Failed to update layout manifest")
			}

			run.Tracker.Advance(notify.PhaseFinalizing, percent, "Updated component from %s to %s",
				orUnknown(previous), rs.ComponentVersion)
			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				ConfiguredByThisStep: "true",
				MetaVersion:          rs.ComponentVersion,
				MetaPrevious:         previous,
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Recording component update")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to record component update")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Component update recorded successfully")
		})
}
