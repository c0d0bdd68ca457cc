// SPDX-License-Identifier: Apache-2.0

package templates

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/pkg/software"
)

const scriptPerm = 0o755

// LaunchScriptTemplate picks the embedded template for a launch script name: batch files for
// ".bat"/".cmd" names, a POSIX shell script otherwise.
func LaunchScriptTemplate(scriptName string) string {
	switch strings.ToLower(filepath.Ext(scriptName)) {
	case ".bat", ".cmd":
		return launchBatchTemplate
	default:
		return launchShellTemplate
	}
}

// WriteLaunchScript renders the launch script for data into dst and makes it executable.
// An existing script is overwritten.
func WriteLaunchScript(dst string, data LaunchScriptData) error {
	if data.ExecutableName == "" {
		return errorx.IllegalArgument.New("executable name cannot be empty")
	}

	content, err := Render(LaunchScriptTemplate(dst), data)
	if err != nil {
		return err
	}

	if err := os.WriteFile(dst, []byte(content), scriptPerm); err != nil {
		return software.NewFilesystemError(err, dst)
	}

	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(dst, scriptPerm); err != nil {
		return software.NewFilesystemError(err, dst)
	}

	return nil
}
