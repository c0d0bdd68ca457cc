// SPDX-License-Identifier: Apache-2.0

package config

import "github.com/joomcode/errorx"

var (
	ErrNamespace = errorx.NewNamespace("kitinstaller_config")
	// NotFoundError means the file passed with --config could not be read.
	NotFoundError = ErrNamespace.NewType("file_not_found", errorx.NotFound())
	// MalformedError means the file was read but its values do not decode into Config.
	MalformedError = ErrNamespace.NewType("malformed")
)

func newNotFoundError(cause error, path string) *errorx.Error {
	return NotFoundError.Wrap(cause, "cannot read installer config file %s", path).
		WithProperty(errorx.PropertyPayload(), path)
}

func newMalformedError(cause error, path string) *errorx.Error {
	return MalformedError.Wrap(cause, "installer config %s has values of the wrong type", path).
		WithProperty(errorx.PropertyPayload(), path)
}
