// SPDX-License-Identifier: Apache-2.0

// Package layout describes the on-disk tree a workflow produces under an install root and verifies it.
package layout

import (
	"io"
	"os"
	"path/filepath"

	"github.com/serverkit/kitinstaller/internal/config"
	"github.com/serverkit/kitinstaller/pkg/software"
)

// DirectoryLayout is the set of paths an install produces.
type DirectoryLayout struct {
	Root         string
	ComponentDir string
	// ArchiveDir is where kept archives are relocated to.
	ArchiveDir string
	// Server is nil unless a server instance is provisioned.
	Server *ServerLayout
}

// ServerLayout is the part of DirectoryLayout created by server provisioning.
type ServerLayout struct {
	Dir          string
	ResourceDir  string
	Executable   string
	ConfigFile   string
	LaunchScript string
}

// New derives the layout of root from configuration. server may be nil.
func New(root string, install config.InstallConfig, server *config.ServerConfig) DirectoryLayout {
	l := DirectoryLayout{
		Root:         root,
		ComponentDir: filepath.Join(root, install.ComponentDir),
		ArchiveDir:   filepath.Join(root, install.ArchiveDir),
	}

	if server != nil {
		dir := filepath.Join(root, server.Dir)
		l.Server = &ServerLayout{
			Dir:          dir,
			ResourceDir:  filepath.Join(dir, server.ResourceDir),
			Executable:   filepath.Join(dir, server.ExecutableName),
			ConfigFile:   filepath.Join(dir, server.ConfigFile),
			LaunchScript: filepath.Join(dir, server.LaunchScript),
		}
	}

	return l
}

// ArchivePath returns where the archive of version is kept, with the extension of downloaded.
func (l DirectoryLayout) ArchivePath(version, downloaded string) string {
	ext := filepath.Ext(downloaded)
	if filepath.Ext(downloaded[:len(downloaded)-len(ext)]) == ".tar" {
		ext = ".tar" + ext
	}
	return filepath.Join(l.ArchiveDir, version+ext)
}

type requirement struct {
	path string
	dir  bool
	// nonEmpty requires a file with content or a directory with at least one entry.
	nonEmpty bool
}

func (l DirectoryLayout) requirements() []requirement {
	reqs := []requirement{
		{path: l.Root, dir: true, nonEmpty: true},
		{path: l.ComponentDir, dir: true, nonEmpty: true},
	}

	if l.Server != nil {
		reqs = append(reqs,
			requirement{path: l.Server.Dir, dir: true, nonEmpty: true},
			// populated by the server itself at runtime
			requirement{path: l.Server.ResourceDir, dir: true},
			requirement{path: l.Server.Executable, nonEmpty: true},
			requirement{path: l.Server.ConfigFile, nonEmpty: true},
			requirement{path: l.Server.LaunchScript, nonEmpty: true},
		)
	}

	return reqs
}

// Paths lists every path the layout requires, root first.
func (l DirectoryLayout) Paths() []string {
	reqs := l.requirements()
	paths := make([]string, 0, len(reqs))
	for _, r := range reqs {
		paths = append(paths, r.path)
	}
	return paths
}

// Verify checks that every required path exists with the right kind and content.
// The first missing or empty path is reported as a VerificationError.
func (l DirectoryLayout) Verify() error {
	for _, r := range l.requirements() {
		if err := verify(r); err != nil {
			return err
		}
	}
	return nil
}

// VerifyServerFiles checks only the executable and launch script of the server layout.
func (l DirectoryLayout) VerifyServerFiles() error {
	if l.Server == nil {
		return nil
	}
	for _, p := range []string{l.Server.Executable, l.Server.LaunchScript} {
		if err := verify(requirement{path: p, nonEmpty: true}); err != nil {
			return err
		}
	}
	return nil
}

func verify(r requirement) error {
	info, err := os.Stat(r.path)
	if err != nil {
		return software.NewVerificationError(r.path).WithUnderlyingErrors(err)
	}

	if info.IsDir() != r.dir {
		return software.NewVerificationError(r.path)
	}

	if !r.nonEmpty {
		return nil
	}

	if !r.dir {
		if info.Size() == 0 {
			return software.NewVerificationError(r.path)
		}
		return nil
	}

	empty, err := isEmptyDir(r.path)
	if err != nil {
		return software.NewFilesystemError(err, r.path)
	}
	if empty {
		return software.NewVerificationError(r.path)
	}

	return nil
}

func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
