// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"os"

	"github.com/automa-saga/logx"
	"github.com/serverkit/kitinstaller/internal/config"
	"github.com/serverkit/kitinstaller/internal/layout"
	"github.com/serverkit/kitinstaller/internal/release"
	"github.com/serverkit/kitinstaller/internal/state"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/pkg/bootstrap"
	"github.com/serverkit/kitinstaller/pkg/software"
)

// Env holds the collaborators steps call into. It is shared by every run of an orchestrator.
type Env struct {
	Config           config.Config
	Resolver         release.Resolver
	Downloader       *software.Downloader
	Extractor        *software.Extractor
	Bootstrap        *bootstrap.Runner
	ConfigStore      *state.ConfigStore
	InstallerVersion string
}

// Run is the state shared by the steps of one workflow run. Steps execute sequentially on a single
// worker so Run needs no locking.
type Run struct {
	Env
	Tracker *notify.Tracker
	Layout  layout.DirectoryLayout

	// request
	DeleteArchive bool
	CreateServer  bool
	PinnedVersion string
	Cached        *release.Release

	// resolved while running
	Component     release.Release
	Installer     release.Release
	ComponentPair release.VersionPair
	InstallerPair release.VersionPair
	Prior         *state.ReleaseState
	ArchivePath   string
	KeptArchive   string
	StagedPath    string
	Installed     *software.InstalledPaths

	tempDir string
	errs    []error
}

// NewRun returns a run over l that reports to tracker.
func NewRun(env Env, l layout.DirectoryLayout, tracker *notify.Tracker) *Run {
	return &Run{Env: env, Layout: l, Tracker: tracker}
}

// Fail records err as a failure of the run and returns it.
func (r *Run) Fail(err error) error {
	if err != nil {
		r.errs = append(r.errs, err)
	}
	return err
}

// Err returns the first recorded failure.
func (r *Run) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[0]
}

func (r *Run) Errors() []error {
	return r.errs
}

// TempDir returns the run's private scratch directory, creating it on first use.
func (r *Run) TempDir() (string, error) {
	if r.tempDir != "" {
		return r.tempDir, nil
	}

	dir, err := os.MkdirTemp("", "kitinstaller-")
	if err != nil {
		return "", software.NewFilesystemError(err, os.TempDir())
	}
	r.tempDir = dir
	return dir, nil
}

// Cleanup removes the scratch directory and any download left in it.
func (r *Run) Cleanup() {
	if r.tempDir == "" {
		return
	}
	if err := os.RemoveAll(r.tempDir); err != nil {
		logx.As().Warn().Err(err).Str("file_path", r.tempDir).Msg("Failed to remove temporary directory")
	}
	r.tempDir = ""
	r.ArchivePath = ""
}
