// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/automa-saga/automa"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/internal/release"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/pkg/software"
)

const (
	stagedInstallerPrefix = "kitinstaller-"
	archiveExt            = ".zip"
)

// DownloadComponent fetches the resolved component archive into the run's scratch directory,
// reporting byte progress between the from and to percentages.
func DownloadComponent(run *Run, from, to int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(DownloadComponentStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			tag := run.Component.Tag
			url, err := release.ArchiveURL(run.Config.Remote.ComponentBaseURL, tag)
			if err != nil {
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(software.NewInvalidURLError(err, run.Config.Remote.ComponentBaseURL))))
			}

			tmp, err := run.TempDir()
			if err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}
			dest := filepath.Join(tmp, tag+archiveExt)

			run.Tracker.Advance(notify.PhaseDownloading, from, "Downloading %s", tag)
			n, err := run.Downloader.Download(ctx, url, dest,
				run.Tracker.Span(notify.PhaseDownloading, from, to, "Downloading "+tag))
			if err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			if run.Component.SHA256 != "" {
				if err := run.Downloader.Checksum(dest, run.Component.SHA256); err != nil {
					_ = os.Remove(dest)
					return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
				}
			}

			run.ArchivePath = dest
			run.Tracker.Advance(notify.PhaseDownloading, to, "Downloaded %s", tag)

			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				DownloadedByThisStep: "true",
				MetaVersion:          tag,
				MetaBytes:            strconv.FormatInt(n, 10),
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Downloading component archive")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to download component archive")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Component archive downloaded successfully")
		})
}

// StageInstaller downloads the latest installer archive into the staging directory. The running
// installer is never replaced; the staged archive is applied by the user on the next restart.
func StageInstaller(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(StageInstallerStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			tag := run.Installer.Tag
			if tag == "" {
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(errorx.IllegalState.New("no installer release to stage"))))
			}

			url, err := release.ArchiveURL(run.Config.Remote.InstallerBaseURL, tag)
			if err != nil {
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(software.NewInvalidURLError(err, run.Config.Remote.InstallerBaseURL))))
			}

			stagingDir := run.Config.Install.StagingDir
			if err := os.MkdirAll(stagingDir, dirPerm); err != nil {
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(software.NewFilesystemError(err, stagingDir))))
			}

			dest := filepath.Join(stagingDir, stagedInstallerPrefix+tag+archiveExt)
			partial := dest + ".part"

			n, err := run.Downloader.Download(ctx, url, partial, nil)
			if err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			if run.Installer.SHA256 != "" {
				if err := run.Downloader.Checksum(partial, run.Installer.SHA256); err != nil {
					_ = os.Remove(partial)
					return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
				}
			}

			if err := os.Rename(partial, dest); err != nil {
				_ = os.Remove(partial)
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(software.NewFilesystemError(err, dest))))
			}

			run.StagedPath = dest
			run.Tracker.Advance(notify.PhaseDownloading, percent,
				"Installer %s staged at %s, restart to apply", tag, dest)

			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				DownloadedByThisStep: "true",
				MetaVersion:          tag,
				MetaPath:             dest,
				MetaBytes:            strconv.FormatInt(n, 10),
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Staging installer update")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to stage installer update")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Installer update staged successfully")
		})
}
