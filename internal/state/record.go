// SPDX-License-Identifier: Apache-2.0

package state

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/pkg/software"
	"github.com/subosito/gotenv"
)

const recordFilePerm = 0o644

// readRecord parses a key=value record and checks it against the allowed and required keys.
// A missing file returns (nil, nil).
func readRecord(filePath string, allowed []string, required []string) (map[string]string, error) {
	content, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, software.NewFilesystemError(err, filePath)
	}

	env, err := gotenv.StrictParse(bytes.NewReader(content))
	if err != nil {
		return nil, newMalformedStateError(err, filePath)
	}

	for key := range env {
		if !contains(allowed, key) {
			return nil, newUnknownKeyError(filePath, key)
		}
	}

	for _, key := range required {
		if strings.TrimSpace(env[key]) == "" {
			return nil, newMissingKeyError(filePath, key)
		}
	}

	return env, nil
}

// writeRecord replaces filePath with the given values. The content is written to a sibling
// temporary file first and renamed into place, so readers never observe a half-written record.
func writeRecord(filePath string, values map[string]string) error {
	for key, value := range values {
		if strings.ContainsAny(value, "\r\n") {
			return errorx.IllegalArgument.New("value of '%s' must be a single line", key)
		}
	}

	content := marshalRecord(values)

	dir := filepath.Dir(filePath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*")
	if err != nil {
		return software.NewFilesystemError(err, filePath)
	}
	tmpPath := tmp.Name()

	_, err = tmp.WriteString(content + "\n")
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, recordFilePerm)
	}
	if err == nil {
		err = os.Rename(tmpPath, filePath)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return software.NewFilesystemError(err, filePath)
	}

	return nil
}

// marshalRecord writes one single-quoted key='value' line per key, sorted by key. The parser
// takes single-quoted values literally: no escapes and no $NAME expansion.
func marshalRecord(values map[string]string) string {
	lines := make([]string, 0, len(values))
	for key, value := range values {
		lines = append(lines, key+"='"+value+"'")
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
