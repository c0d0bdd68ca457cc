// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"os"
	"strconv"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/internal/release"
	"github.com/serverkit/kitinstaller/internal/state"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/pkg/sanity"
	"github.com/serverkit/kitinstaller/pkg/software"
)

const dirPerm = 0o755

// CreateInstallDirs creates the install root and its component sub-folder.
func CreateInstallDirs(run *Run) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(CreateInstallDirsStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			meta := map[string]string{}

			for _, dir := range []string{run.Layout.Root, run.Layout.ComponentDir} {
				if err := os.MkdirAll(dir, dirPerm); err != nil {
					return automa.StepFailureReport(stp.Id(),
						automa.WithError(run.Fail(software.NewFilesystemError(err, dir))))
				}
			}

			meta[CreatedByThisStep] = "true"
			meta[MetaPath] = run.Layout.ComponentDir
			run.Tracker.Advance(notify.PhasePreparing, 5, "Created %s", run.Layout.ComponentDir)

			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(meta))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Creating install directories")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to create install directories")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Install directories created successfully")
		})
}

// ResolveComponentVersion decides which component version to install: a pinned version wins, then a
// version found by an earlier background check, then the latest remote release.
func ResolveComponentVersion(run *Run) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(ResolveComponentVersionStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			source := "remote"
			switch {
			case run.PinnedVersion != "":
				run.Component = release.Release{Tag: run.PinnedVersion}
				source = "pinned"
			case run.Cached != nil:
				run.Component = *run.Cached
				source = "cached"
			default:
				rel, ok := run.Resolver.Latest(ctx, release.ComponentToolkit)
				if !ok {
					err := software.NewNetworkError(
						errorx.IllegalState.New("latest component version is unavailable"),
						run.Config.Remote.ComponentBaseURL, 0)
					return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
				}
				run.Component = rel
			}

			if err := sanity.ValidateVersionTag(run.Component.Tag); err != nil {
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(errorx.IllegalArgument.Wrap(err, "invalid component version"))))
			}

			logx.As().Info().
				Str("version", run.Component.Tag).
				Str("source", source).
				Msg("Component version resolved")
			run.Tracker.Advance(notify.PhasePreparing, 10, "Installing version %s", run.Component.Tag)

			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				MetaVersion: run.Component.Tag,
				"source":    source,
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Resolving component version")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to resolve component version")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Component version resolved successfully")
		})
}

// ReadReleaseState loads what is installed at the root. A missing or unreadable record is not a
// failure; the run continues with nothing installed.
func ReadReleaseState(run *Run) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(ReadReleaseStateStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			rs, err := state.ReadReleaseState(run.Layout.Root)
			if err != nil {
				run.Tracker.Warn("Ignoring unreadable release state: %v", err)
				rs = nil
			}
			run.Prior = rs

			meta := map[string]string{}
			if rs == nil {
				run.Tracker.Warn("No release state found at %s", run.Layout.Root)
				run.Tracker.Advance(notify.PhasePreparing, 5, "Nothing installed at %s", run.Layout.Root)
				meta[SkippedByThisStep] = "true"
				return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(meta))
			}

			meta[MetaVersion] = rs.ComponentVersion
			meta["installerVersion"] = rs.InstallerVersion
			run.Tracker.Advance(notify.PhasePreparing, 5, "Installed version %s", rs.ComponentVersion)

			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(meta))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Reading release state")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to read release state")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Release state read successfully")
		})
}

// ResolveLatestVersions computes the version pairs of the component and of the installer itself.
// An unavailable remote version means no update for that side.
func ResolveLatestVersions(run *Run) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(ResolveLatestVersionsStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			currentComponent := ""
			if run.Prior != nil {
				currentComponent = run.Prior.ComponentVersion
			}

			if rel, ok := run.Resolver.Latest(ctx, release.ComponentToolkit); ok {
				run.Component = rel
			} else {
				run.Tracker.Warn("Latest component version is unavailable")
			}
			run.ComponentPair = release.NewVersionPair(run.Component.Tag, currentComponent)

			if rel, ok := run.Resolver.Latest(ctx, release.ComponentInstaller); ok {
				run.Installer = rel
			} else {
				run.Tracker.Warn("Latest installer version is unavailable")
			}
			run.InstallerPair = release.NewVersionPair(run.Installer.Tag, run.InstallerVersion)

			run.Tracker.Advance(notify.PhasePreparing, 10, "Latest versions: component %s, installer %s",
				orUnknown(run.ComponentPair.LatestRemote), orUnknown(run.InstallerPair.LatestRemote))

			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				"componentLatest":  run.ComponentPair.LatestRemote,
				"componentUpdate":  strconv.FormatBool(run.ComponentPair.UpdateAvailable),
				"installerLatest":  run.InstallerPair.LatestRemote,
				"installerUpdate":  strconv.FormatBool(run.InstallerPair.UpdateAvailable),
				"componentCurrent": run.ComponentPair.CurrentLocal,
				MetaUpdate:         strconv.FormatBool(run.ComponentPair.UpdateAvailable || run.InstallerPair.UpdateAvailable),
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Resolving latest versions")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to resolve latest versions")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Latest versions resolved successfully")
		})
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
