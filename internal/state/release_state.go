// SPDX-License-Identifier: Apache-2.0

package state

import (
	"path/filepath"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
)

const (
	ReleaseStateFile = "release.state"

	KeyComponentVersion = "componentVersion"
	KeyInstallerVersion = "installerVersion"
)

// ReleaseState records which component and installer versions were last installed at a root.
type ReleaseState struct {
	ComponentVersion string `yaml:"componentVersion" json:"componentVersion"`
	InstallerVersion string `yaml:"installerVersion" json:"installerVersion"`
}

// ReleaseStatePath returns the release state file of an install root.
func ReleaseStatePath(root string) string {
	return filepath.Join(root, ReleaseStateFile)
}

// ReadReleaseState reads the release state of root.
//
// It returns (nil, nil) when the root was never installed, a MalformedStateError when the record
// exists but cannot be trusted and a FilesystemError when it cannot be read.
func ReadReleaseState(root string) (*ReleaseState, error) {
	env, err := readRecord(ReleaseStatePath(root),
		[]string{KeyComponentVersion, KeyInstallerVersion},
		[]string{KeyComponentVersion})
	if err != nil || env == nil {
		return nil, err
	}

	return &ReleaseState{
		ComponentVersion: env[KeyComponentVersion],
		InstallerVersion: env[KeyInstallerVersion],
	}, nil
}

// LoadReleaseState is ReadReleaseState with every failure degraded to "absent".
func LoadReleaseState(root string) *ReleaseState {
	rs, err := ReadReleaseState(root)
	if err != nil {
		logx.As().Warn().
			Err(err).
			Str("install_root", root).
			Msg("Ignoring unreadable release state")
		return nil
	}
	return rs
}

// WriteReleaseState overwrites the release state of root.
func WriteReleaseState(root string, rs ReleaseState) error {
	if rs.ComponentVersion == "" {
		return errorx.IllegalArgument.New("component version is required")
	}

	values := map[string]string{
		KeyComponentVersion: rs.ComponentVersion,
	}
	if rs.InstallerVersion != "" {
		values[KeyInstallerVersion] = rs.InstallerVersion
	}

	if err := writeRecord(ReleaseStatePath(root), values); err != nil {
		return err
	}

	logx.As().Debug().
		Str("install_root", root).
		Str("component_version", rs.ComponentVersion).
		Str("installer_version", rs.InstallerVersion).
		Msg("Release state written")

	return nil
}
