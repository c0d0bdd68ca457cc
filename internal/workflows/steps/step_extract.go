// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/pkg/software"
)

// ExtractComponent unpacks the downloaded archive into the component folder.
func ExtractComponent(run *Run, from, to int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(ExtractComponentStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if run.ArchivePath == "" {
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(errorx.IllegalState.New("no downloaded archive to extract"))))
			}

			run.Tracker.Advance(notify.PhaseExtracting, from, "Extracting %s", run.Component.Tag)

			installed, err := run.Extractor.Extract(run.ArchivePath, run.Layout.ComponentDir)
			if err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}
			run.Installed = installed

			run.Tracker.Advance(notify.PhaseExtracting, to, "Extracted %d files", len(installed.Files))

			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(map[string]string{
				ExtractedByThisStep: "true",
				MetaPath:            run.Layout.ComponentDir,
				MetaFiles:           strconv.Itoa(len(installed.Files)),
			}))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Extracting component archive")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to extract component archive")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Component archive extracted successfully")
		})
}

// DisposeArchive deletes the downloaded archive, or moves it to the archive folder of the root when
// the request asked to keep it.
func DisposeArchive(run *Run, percent int) *automa.StepBuilder {
	return automa.NewStepBuilder().WithId(DisposeArchiveStepId).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			meta := map[string]string{}

			if run.DeleteArchive {
				if err := os.Remove(run.ArchivePath); err != nil && !os.IsNotExist(err) {
					return automa.StepFailureReport(stp.Id(),
						automa.WithError(run.Fail(software.NewFilesystemError(err, run.ArchivePath))))
				}
				run.ArchivePath = ""
				meta[CleanedUpByThisStep] = "true"
				run.Tracker.Advance(notify.PhaseExtracting, percent, "Removed downloaded archive")
				return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(meta))
			}

			if err := os.MkdirAll(run.Layout.ArchiveDir, dirPerm); err != nil {
				return automa.StepFailureReport(stp.Id(),
					automa.WithError(run.Fail(software.NewFilesystemError(err, run.Layout.ArchiveDir))))
			}

			kept := run.Layout.ArchivePath(run.Component.Tag, run.ArchivePath)
			if err := moveFile(run.ArchivePath, kept); err != nil {
				return automa.StepFailureReport(stp.Id(), automa.WithError(run.Fail(err)))
			}
			run.ArchivePath = ""
			run.KeptArchive = kept

			meta[MetaArchive] = kept
			run.Tracker.Advance(notify.PhaseExtracting, percent, "Archive kept at %s", kept)

			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(meta))
		}).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Disposing of downloaded archive")
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Failed to dispose of downloaded archive")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Downloaded archive disposed successfully")
		})
}

// moveFile renames src to dst, copying across filesystems when a rename is not possible.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else {
		logx.As().Debug().Err(err).Str("file_path", src).Msg("Rename failed, copying instead")
	}

	in, err := os.Open(src)
	if err != nil {
		return software.NewFilesystemError(err, src)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp.*")
	if err != nil {
		return software.NewFilesystemError(err, dst)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return software.NewFilesystemError(err, dst)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return software.NewFilesystemError(err, dst)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return software.NewFilesystemError(err, dst)
	}

	_ = os.Remove(src)
	return nil
}
