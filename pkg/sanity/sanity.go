// SPDX-License-Identifier: Apache-2.0

package sanity

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joomcode/errorx"
)

var (
	ErrInvalidFilename = errorx.IllegalArgument.New("invalid filename")
)

var (
	// versionTagChars is what a release tag may contain; tags become file names on disk.
	versionTagChars = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+\-]*$`)
)

const maxVersionTagLength = 128

// Filename sanitize the input string to be safe filename
// It only allows alphanumeric characters (a-z, 0-9), dash and underscore
// It returns error if the filename is empty string after the sanitization
func Filename(s string) (string, error) {
	sb := []byte(s)
	j := 0
	for _, b := range sb {
		if ('a' <= b && b <= 'z') ||
			('A' <= b && b <= 'Z') ||
			('0' <= b && b <= '9') ||
			b == '_' ||
			b == '-' {
			sb[j] = b
			j++
		}
	}

	if j == 0 {
		return "", ErrInvalidFilename
	}

	return string(sb[:j]), nil
}

// ValidateVersionTag checks that a release tag can be used as a file name component.
// Tags come from the remote release endpoint, so they are never trusted as-is.
func ValidateVersionTag(tag string) error {
	if tag == "" {
		return errorx.IllegalArgument.New("version tag cannot be empty")
	}

	if len(tag) > maxVersionTagLength {
		return errorx.IllegalArgument.New("version tag is too long: %d characters", len(tag))
	}

	if strings.Contains(tag, "..") {
		return errorx.IllegalArgument.New("version tag cannot contain '..': %s", tag)
	}

	if !versionTagChars.MatchString(tag) {
		return errorx.IllegalArgument.New("version tag contains invalid characters: %s", tag)
	}

	return nil
}

// ValidateURL checks that rawURL is an absolute http(s) URL with a host.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errorx.IllegalArgument.New("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return errorx.IllegalArgument.New("invalid URL: %s", rawURL).WithUnderlyingErrors(err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errorx.IllegalArgument.New("URL scheme must be http or https: %s", rawURL)
	}

	if u.Hostname() == "" {
		return errorx.IllegalArgument.New("URL must have a valid host: %s", rawURL)
	}

	return nil
}

// ValidateInstallPath validates a user supplied installation directory and returns it cleaned.
//
// The path must be absolute and must not contain NUL bytes or ".." segments. Unlike archive entry
// names it may contain spaces and non-ascii characters, since it is chosen by the user.
func ValidateInstallPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errorx.IllegalArgument.New("path cannot be empty")
	}

	if strings.ContainsRune(path, 0) {
		return "", errorx.IllegalArgument.New("path contains a NUL byte")
	}

	if !filepath.IsAbs(path) {
		return "", errorx.IllegalArgument.New("path must be absolute: %s", path)
	}

	for _, segment := range strings.FieldsFunc(path, isSeparator) {
		if segment == ".." {
			return "", errorx.IllegalArgument.New("path cannot contain '..' segments: %s", path)
		}
	}

	return filepath.Clean(path), nil
}

// ValidatePathWithinBase verifies that targetPath resolves inside basePath and returns it cleaned.
func ValidatePathWithinBase(basePath, targetPath string) (string, error) {
	if basePath == "" {
		return "", errorx.IllegalArgument.New("base path cannot be empty")
	}

	if targetPath == "" {
		return "", errorx.IllegalArgument.New("target path cannot be empty")
	}

	base := filepath.Clean(basePath)
	target := filepath.Clean(targetPath)
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}

	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", errorx.IllegalArgument.New("path %s is not within %s", targetPath, basePath).WithUnderlyingErrors(err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errorx.IllegalArgument.New("path %s is not within %s", targetPath, basePath)
	}

	return target, nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
