// SPDX-License-Identifier: Apache-2.0

package layout

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/pkg/software"
)

const ManifestFile = "layout.toml"

// Manifest records what the last successful workflow produced under a root.
type Manifest struct {
	ComponentVersion string          `toml:"component_version" yaml:"componentVersion" json:"componentVersion"`
	InstallerVersion string          `toml:"installer_version" yaml:"installerVersion" json:"installerVersion"`
	UpdatedAt        time.Time       `toml:"updated_at" yaml:"updatedAt" json:"updatedAt"`
	Root             string          `toml:"root" yaml:"root" json:"root"`
	ComponentDir     string          `toml:"component_dir" yaml:"componentDir" json:"componentDir"`
	Archive          string          `toml:"archive,omitempty" yaml:"archive,omitempty" json:"archive,omitempty"`
	Server           *ServerManifest `toml:"server,omitempty" yaml:"server,omitempty" json:"server,omitempty"`
}

type ServerManifest struct {
	Dir          string `toml:"dir" yaml:"dir" json:"dir"`
	ResourceDir  string `toml:"resource_dir" yaml:"resourceDir" json:"resourceDir"`
	Executable   string `toml:"executable" yaml:"executable" json:"executable"`
	ConfigFile   string `toml:"config_file" yaml:"configFile" json:"configFile"`
	LaunchScript string `toml:"launch_script" yaml:"launchScript" json:"launchScript"`
}

func ManifestPath(root string) string {
	return filepath.Join(root, ManifestFile)
}

// NewManifest describes l with paths relative to its root.
func NewManifest(l DirectoryLayout, componentVersion, installerVersion string) Manifest {
	m := Manifest{
		ComponentVersion: componentVersion,
		InstallerVersion: installerVersion,
		UpdatedAt:        time.Now().UTC().Truncate(time.Second),
		Root:             l.Root,
		ComponentDir:     rel(l.Root, l.ComponentDir),
	}

	if l.Server != nil {
		m.Server = &ServerManifest{
			Dir:          rel(l.Root, l.Server.Dir),
			ResourceDir:  rel(l.Root, l.Server.ResourceDir),
			Executable:   rel(l.Root, l.Server.Executable),
			ConfigFile:   rel(l.Root, l.Server.ConfigFile),
			LaunchScript: rel(l.Root, l.Server.LaunchScript),
		}
	}

	return m
}

// WriteManifest writes m to <root>/layout.toml.
func WriteManifest(root string, m Manifest) error {
	p := ManifestPath(root)
	tmp := p + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return software.NewFilesystemError(err, p)
	}

	encErr := toml.NewEncoder(file).Encode(m)
	closeErr := file.Close()
	if encErr != nil {
		_ = os.Remove(tmp)
		return errorx.IllegalFormat.Wrap(encErr, "failed to encode layout manifest")
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return software.NewFilesystemError(closeErr, p)
	}

	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return software.NewFilesystemError(err, p)
	}

	return nil
}

// ReadManifest returns (nil, nil) when root has no manifest.
func ReadManifest(root string) (*Manifest, error) {
	var m Manifest
	_, err := toml.DecodeFile(ManifestPath(root), &m)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errorx.IllegalFormat.Wrap(err, "failed to read layout manifest of %s", root)
	}
	return &m, nil
}

// RecordComponentUpdate updates the component version of an existing manifest. A root without a
// manifest is left alone.
func RecordComponentUpdate(root, componentVersion string) error {
	m, err := ReadManifest(root)
	if err != nil || m == nil {
		return err
	}

	m.ComponentVersion = componentVersion
	m.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	return WriteManifest(root, *m)
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(r)
}
