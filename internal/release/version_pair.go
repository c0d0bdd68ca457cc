// SPDX-License-Identifier: Apache-2.0

package release

import (
	"github.com/Masterminds/semver/v3"
)

// VersionPair compares the latest remote version of something with what is installed locally.
type VersionPair struct {
	LatestRemote    string `json:"latestRemote" yaml:"latestRemote"`
	CurrentLocal    string `json:"currentLocal" yaml:"currentLocal"`
	UpdateAvailable bool   `json:"updateAvailable" yaml:"updateAvailable"`
}

// NewVersionPair computes UpdateAvailable: true only when both versions parse and latest > current.
// An empty current version never yields an update.
func NewVersionPair(latestRemote, currentLocal string) VersionPair {
	return VersionPair{
		LatestRemote:    latestRemote,
		CurrentLocal:    currentLocal,
		UpdateAvailable: UpdateAvailable(latestRemote, currentLocal),
	}
}

// UpdateAvailable reports whether latest is strictly newer than current under semver ordering.
func UpdateAvailable(latest, current string) bool {
	if latest == "" || current == "" {
		return false
	}

	lv, err := semver.NewVersion(latest)
	if err != nil {
		return false
	}

	cv, err := semver.NewVersion(current)
	if err != nil {
		return false
	}

	return lv.GreaterThan(cv)
}
