// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/serverkit/kitinstaller/internal/templates"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/pkg/sanity"
	"github.com/serverkit/kitinstaller/pkg/software"
)

const (
	executablePerm = 0o755
	// firstRunDir is where the server executable runs during bootstrap, inside the server folder.
	firstRunDir = ".first-run"
)

// CreateServerTree creates the server folder and its resource sub-tree.
func CreateServerTree(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(CreateServerTreeStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			srv := run.Layout.Server
			for _, dir := range []string{srv.Dir, srv.ResourceDir} {
				if err := os.MkdirAll(dir, dirPerm); err != nil {
					return automa.StepFailureReport(stp.Id(),
						automa.WithError(run.Fail(software.NewFilesystemError(err, dir))))
				}
			}

			run.Tracker.Advance(notify.PhaseFinalizing, percent, "Created server folder %s", srv.Dir)
			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				CreatedByThisStep: "true",
				MetaPath:          srv.Dir,
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Creating server folder")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to create server folder")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Server folder created successfully")
		})
}

// FetchServerExecutable downloads the bundled server executable into the server folder.
func FetchServerExecutable(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(FetchServerExecutableStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			exe := run.Layout.Server.Executable
			partial := exe + ".part"

			n, err := run.Downloader.Download(ctx, run.Config.Server.ExecutableURL, partial, nil)
			if err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			if err := os.Chmod(partial, executablePerm); err != nil {
				_ = os.Remove(partial)
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(software.NewFilesystemError(err, partial))))
			}

			if err := os.Rename(partial, exe); err != nil {
				_ = os.Remove(partial)
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(software.NewFilesystemError(err, exe))))
			}

			run.Tracker.Advance(notify.PhaseFinalizing, percent, "Downloaded server executable")
			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				DownloadedByThisStep: "true",
				MetaPath:             exe,
				MetaBytes:            strconv.FormatInt(n, 10),
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Downloading server executable")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to download server executable")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Server executable downloaded successfully")
		})
}

// BootstrapServer runs the server executable once, unattended, inside a scratch folder so that it
// writes its first-run files there. They are moved into place by RelocateServerConfig.
func BootstrapServer(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(BootstrapServerStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			srv := run.Layout.Server
			workDir := filepath.Join(srv.Dir, firstRunDir)
			if err := os.MkdirAll(workDir, dirPerm); err != nil {
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(software.NewFilesystemError(err, workDir))))
			}

			run.Tracker.Advance(notify.PhaseFinalizing, percent-1, "Starting server for first-run setup")
			if err := run.Bootstrap.Run(ctx, srv.Executable, workDir); err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			run.Tracker.Advance(notify.PhaseFinalizing, percent, "Server first-run setup finished")
			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				ConfiguredByThisStep: "true",
				MetaPath:             workDir,
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Bootstrapping server executable")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to bootstrap server executable")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Server executable bootstrapped successfully")
		})
}

// WriteLaunchScript renders the server launch script.
func WriteLaunchScript(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(WriteLaunchScriptStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			srv := run.Layout.Server
			data := templates.LaunchScriptData{
				ServerName:       filepath.Base(run.Layout.Root),
				ExecutableName:   filepath.Base(srv.Executable),
				ConfigFile:       filepath.Base(srv.ConfigFile),
				ComponentVersion: run.Component.Tag,
				InstallerVersion: run.InstallerVersion,
			}

			if err := templates.WriteLaunchScript(srv.LaunchScript, data); err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			run.Tracker.Advance(notify.PhaseFinalizing, percent, "Wrote launch script %s", srv.LaunchScript)
			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				InstalledByThisStep: "true",
				MetaPath:            srv.LaunchScript,
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Writing launch script")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to write launch script")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Launch script written successfully")
		})
}

// RelocateServerConfig checks the executable and launch script, then moves what the bootstrap
// produced, the configuration file included, from the scratch folder into the server folder. Files
// already in the server folder win over their first-run copies.
func RelocateServerConfig(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(RelocateServerConfigStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if err := run.Layout.VerifyServerFiles(); err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			srv := run.Layout.Server
			workDir := filepath.Join(srv.Dir, firstRunDir)
			moved, err := relocateEntries(workDir, srv.Dir)
			if err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}

			if err := os.RemoveAll(workDir); err != nil {
				logx.As().Warn().Err(err).Str("file_path", workDir).Msg("Failed to remove first-run folder")
			}

			if _, err := os.Stat(srv.ConfigFile); err != nil {
				run.Tracker.Warn("Server did not generate %s", filepath.Base(srv.ConfigFile))
			}

			run.Tracker.Advance(notify.PhaseFinalizing, percent, "Moved %d first-run files into %s", moved, srv.Dir)
			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				ConfiguredByThisStep: "true",
				MetaFiles:            strconv.Itoa(moved),
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Relocating server configuration")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to relocate server configuration")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Server configuration relocated successfully")
		})
}

// relocateEntries moves the top-level entries of src into dst. Entries already present in dst are
// kept as they are, so a reinstall never replaces an edited configuration. A missing src moves
// nothing.
func relocateEntries(src, dst string) (int, error) {
	entries, err := os.ReadDir(src)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, software.NewFilesystemError(err, src)
	}

	moved := 0
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to, err := sanity.ValidatePathWithinBase(dst, e.Name())
		if err != nil {
			return moved, software.NewFilesystemError(err, from)
		}

		if _, err := os.Lstat(to); err == nil {
			logx.As().Info().Str("file_path", to).Msg("Keeping existing file, first-run copy discarded")
			continue
		} else if !os.IsNotExist(err) {
			return moved, software.NewFilesystemError(err, to)
		}

		if err := os.Rename(from, to); err != nil {
			return moved, software.NewFilesystemError(err, to)
		}

		logx.As().Debug().Str("file_path", to).Msg("Relocated first-run file")
		moved++
	}

	return moved, nil
}
