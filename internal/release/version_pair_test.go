// SPDX-License-Identifier: Apache-2.0

package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateAvailable(t *testing.T) {
	testCases := []struct {
		name     string
		latest   string
		current  string
		expected bool
	}{
		{name: "newer patch", latest: "1.4.1", current: "1.4.0", expected: true},
		{name: "newer minor", latest: "1.10.0", current: "1.9.3", expected: true},
		{name: "newer major with prefix", latest: "v2.0.0", current: "1.99.0", expected: true},
		{name: "release after prerelease", latest: "1.0.0", current: "1.0.0-rc.1", expected: true},
		{name: "older", latest: "1.4.0", current: "1.4.1", expected: false},
		{name: "equal", latest: "1.4.0", current: "1.4.0", expected: false},
		{name: "equal ignoring prefix", latest: "v1.4.0", current: "1.4.0", expected: false},
		{name: "absent current", latest: "1.4.0", current: "", expected: false},
		{name: "absent latest", latest: "", current: "1.4.0", expected: false},
		{name: "unparsable latest", latest: "latest", current: "1.4.0", expected: false},
		{name: "unparsable current", latest: "1.4.0", current: "dev-build", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, UpdateAvailable(tc.latest, tc.current))

			pair := NewVersionPair(tc.latest, tc.current)
			require.Equal(t, tc.expected, pair.UpdateAvailable)
			require.Equal(t, tc.latest, pair.LatestRemote)
			require.Equal(t, tc.current, pair.CurrentLocal)
		})
	}
}

func TestUpdateAvailable_IsAntisymmetric(t *testing.T) {
	versions := []string{"0.1.0", "0.9.9", "1.0.0-alpha", "1.0.0", "1.2.3", "2.0.0"}
	for i, a := range versions {
		for _, b := range versions[i+1:] {
			require.True(t, UpdateAvailable(b, a), "%s -> %s", a, b)
			require.False(t, UpdateAvailable(a, b), "%s -> %s", b, a)
		}
	}
}
