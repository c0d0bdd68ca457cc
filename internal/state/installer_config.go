// SPDX-License-Identifier: Apache-2.0

package state

import (
	"os"
	"path/filepath"

	"github.com/automa-saga/logx"
	"github.com/serverkit/kitinstaller/pkg/sanity"
	"github.com/serverkit/kitinstaller/pkg/software"
)

const KeyLastInstallPath = "lastInstallPath"

// InstallerConfig is the tool's own record, kept alongside its executable.
type InstallerConfig struct {
	LastInstallPath string
}

// ConfigStore reads and writes the InstallerConfig file.
type ConfigStore struct {
	filePath     string
	componentDir string
}

// NewConfigStore returns a store for filePath. componentDir is the sub-folder that must exist
// under a stored install path for that path to be trusted.
func NewConfigStore(filePath, componentDir string) *ConfigStore {
	return &ConfigStore{filePath: filePath, componentDir: componentDir}
}

func (s *ConfigStore) Path() string {
	return s.filePath
}

// Read returns (nil, nil) when no config was written yet.
func (s *ConfigStore) Read() (*InstallerConfig, error) {
	env, err := readRecord(s.filePath, []string{KeyLastInstallPath}, []string{KeyLastInstallPath})
	if err != nil || env == nil {
		return nil, err
	}

	return &InstallerConfig{LastInstallPath: env[KeyLastInstallPath]}, nil
}

// Write records installPath as the last used installation path.
func (s *ConfigStore) Write(installPath string) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return software.NewFilesystemError(err, s.filePath)
	}
	return writeRecord(s.filePath, map[string]string{KeyLastInstallPath: installPath})
}

// LoadInstallationPath returns the stored install path, or defaultPath when there is no usable
// config or the stored path does not contain the component sub-folder.
func (s *ConfigStore) LoadInstallationPath(defaultPath string) string {
	cfg, err := s.Read()
	if err != nil {
		logx.As().Warn().Err(err).Str("file_path", s.filePath).Msg("Ignoring unreadable installer config")
		return defaultPath
	}
	if cfg == nil {
		return defaultPath
	}

	p, err := sanity.ValidateInstallPath(cfg.LastInstallPath)
	if err != nil {
		logx.As().Warn().Err(err).Str("file_path", s.filePath).Msg("Ignoring invalid stored install path")
		return defaultPath
	}

	info, err := os.Stat(filepath.Join(p, s.componentDir))
	if err != nil || !info.IsDir() {
		logx.As().Debug().
			Str("install_root", p).
			Str("component_dir", s.componentDir).
			Msg("Stored install path has no component folder, using default")
		return defaultPath
	}

	return p
}
