// SPDX-License-Identifier: Apache-2.0

package software

import (
	"strconv"

	"github.com/joomcode/errorx"
)

// Error kinds surfaced to the UI shell. Every failure reported by a workflow maps to one of them.
const (
	KindNetwork        = "network_error"
	KindCorruptArchive = "corrupt_archive"
	KindFilesystem     = "filesystem_error"
	KindVerification   = "verification_error"
	KindLaunch         = "launch_error"
	KindInternal       = "internal"
)

var (
	ErrorsNamespace     = errorx.NewNamespace("kitinstaller")
	NetworkError        = ErrorsNamespace.NewType(KindNetwork)
	CorruptArchiveError = ErrorsNamespace.NewType(KindCorruptArchive)
	PathTraversalError  = CorruptArchiveError.NewSubtype("path_traversal")
	ChecksumError       = CorruptArchiveError.NewSubtype("checksum_mismatch")
	FilesystemError     = ErrorsNamespace.NewType(KindFilesystem)
	VerificationError   = ErrorsNamespace.NewType(KindVerification, errorx.NotFound())
	LaunchError         = ErrorsNamespace.NewType(KindLaunch)
	InvalidURLError     = ErrorsNamespace.NewType("invalid_url")

	urlProperty          = errorx.RegisterPrintableProperty("url")
	filePathProperty     = errorx.RegisterPrintableProperty("file_path")
	entryProperty        = errorx.RegisterPrintableProperty("entry")
	statusCodeProperty   = errorx.RegisterPrintableProperty("status_code")
	expectedHashProperty = errorx.RegisterPrintableProperty("expected_hash")
	actualHashProperty   = errorx.RegisterPrintableProperty("actual_hash")
)

const (
	networkErrorMsg       = "failed to download from URL '%s'"
	corruptArchiveMsg     = "archive '%s' is corrupt or not a supported format"
	pathTraversalErrorMsg = "path traversal detected: entry '%s' attempts to escape extraction directory"
	checksumErrorMsg      = "checksum verification failed for file '%s' [ expected = '%s', actual = '%s' ]"
	extractionIOErrorMsg  = "failed to extract file '%s' to '%s'"
	filesystemErrorMsg    = "filesystem operation failed on '%s'"
	verificationErrorMsg  = "expected artifact is missing or empty: '%s'"
	invalidURLErrorMsg    = "invalid or unsafe URL: '%s'"
)

func NewNetworkError(cause error, url string, statusCode int) *errorx.Error {
	err := NetworkError.New(networkErrorMsg, url).
		WithProperty(urlProperty, url)

	if statusCode > 0 {
		err = err.WithProperty(statusCodeProperty, statusCode)
	}

	if cause != nil {
		err = err.WithUnderlyingErrors(cause)
	}

	return err
}

func NewCorruptArchiveError(cause error, archivePath string) *errorx.Error {
	err := CorruptArchiveError.New(corruptArchiveMsg, archivePath).
		WithProperty(filePathProperty, archivePath)

	if cause != nil {
		err = err.WithUnderlyingErrors(cause)
	}

	return err
}

func NewPathTraversalError(entryName string) *errorx.Error {
	return PathTraversalError.New(pathTraversalErrorMsg, entryName).
		WithProperty(entryProperty, entryName)
}

func NewChecksumError(filePath, expectedHash, actualHash string) *errorx.Error {
	return ChecksumError.New(checksumErrorMsg, filePath, expectedHash, actualHash).
		WithProperty(filePathProperty, filePath).
		WithProperty(expectedHashProperty, expectedHash).
		WithProperty(actualHashProperty, actualHash)
}

// NewExtractionIOError reports a read/write failure while extracting an archive that itself parsed fine.
func NewExtractionIOError(cause error, archivePath, destPath string) *errorx.Error {
	err := FilesystemError.New(extractionIOErrorMsg, archivePath, destPath).
		WithProperty(filePathProperty, destPath)

	if cause != nil {
		err = err.WithUnderlyingErrors(cause)
	}

	return err
}

func NewFilesystemError(cause error, path string) *errorx.Error {
	err := FilesystemError.New(filesystemErrorMsg, path).
		WithProperty(filePathProperty, path)

	if cause != nil {
		err = err.WithUnderlyingErrors(cause)
	}

	return err
}

func NewVerificationError(path string) *errorx.Error {
	return VerificationError.New(verificationErrorMsg, path).
		WithProperty(filePathProperty, path)
}

func NewInvalidURLError(cause error, url string) *errorx.Error {
	err := InvalidURLError.New(invalidURLErrorMsg, url).
		WithProperty(urlProperty, url)

	if cause != nil {
		err = err.WithUnderlyingErrors(cause)
	}

	return err
}

// Kind maps an error to the taxonomy name shown by the UI shell.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errorx.IsOfType(err, NetworkError):
		return KindNetwork
	case errorx.IsOfType(err, CorruptArchiveError):
		return KindCorruptArchive
	case errorx.IsOfType(err, FilesystemError):
		return KindFilesystem
	case errorx.IsOfType(err, VerificationError):
		return KindVerification
	case errorx.IsOfType(err, LaunchError):
		return KindLaunch
	default:
		return KindInternal
	}
}

// SafeErrorDetails emits a PII-safe slice of error details.
func SafeErrorDetails(err *errorx.Error) []string {
	var safeDetails []string
	if err == nil {
		return safeDetails
	}

	for _, prop := range []errorx.Property{
		urlProperty, filePathProperty, entryProperty, expectedHashProperty, actualHashProperty, statusCodeProperty,
	} {
		if val, ok := err.Property(prop); ok {
			switch v := val.(type) {
			case string:
				safeDetails = append(safeDetails, v)
			case int:
				safeDetails = append(safeDetails, strconv.Itoa(v))
			}
		}
	}

	return safeDetails
}
