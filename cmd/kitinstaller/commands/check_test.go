// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"testing"

	"github.com/serverkit/kitinstaller/internal/release"
	"github.com/serverkit/kitinstaller/internal/state"
	"github.com/serverkit/kitinstaller/internal/workflows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleCheck() checkOutput {
	return checkOutput{
		UpdateCheck: workflows.UpdateCheck{
			Root:      "/opt/kit",
			Component: release.NewVersionPair("1.3.0", "1.2.0"),
			Installer: release.NewVersionPair("1.0.0", "1.0.0"),
		},
		Installed: &state.ReleaseState{ComponentVersion: "1.2.0", InstallerVersion: "1.0.0"},
	}
}

func TestFormatCheck_YAML(t *testing.T) {
	text, err := formatCheck(sampleCheck(), "yaml")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, "/opt/kit", decoded["root"])
	component, ok := decoded["component"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, component["updateAvailable"])
	assert.NotContains(t, decoded, "layout")
}

func TestFormatCheck_JSON(t *testing.T) {
	text, err := formatCheck(sampleCheck(), "JSON")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, "/opt/kit", decoded["root"])
	installed, ok := decoded["installed"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.2.0", installed["componentVersion"])
}

func TestFormatCheck_UnknownFormat(t *testing.T) {
	_, err := formatCheck(sampleCheck(), "xml")
	require.Error(t, err)
}
