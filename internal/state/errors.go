// SPDX-License-Identifier: Apache-2.0

package state

import (
	"github.com/joomcode/errorx"
)

var (
	ErrorsNamespace = errorx.NewNamespace("state")
	// MalformedStateError means a record exists but cannot be trusted. Callers treat it like an
	// absent record.
	MalformedStateError = ErrorsNamespace.NewType("malformed_state")

	filePathProperty = errorx.RegisterPrintableProperty("state_file")
	keyProperty      = errorx.RegisterPrintableProperty("state_key")
)

func newMalformedStateError(cause error, filePath string) *errorx.Error {
	err := MalformedStateError.New("state file '%s' is malformed", filePath).
		WithProperty(filePathProperty, filePath)
	if cause != nil {
		err = err.WithUnderlyingErrors(cause)
	}
	return err
}

func newUnknownKeyError(filePath, key string) *errorx.Error {
	return MalformedStateError.New("state file '%s' has unknown key '%s'", filePath, key).
		WithProperty(filePathProperty, filePath).
		WithProperty(keyProperty, key)
}

func newMissingKeyError(filePath, key string) *errorx.Error {
	return MalformedStateError.New("state file '%s' is missing required key '%s'", filePath, key).
		WithProperty(filePathProperty, filePath).
		WithProperty(keyProperty, key)
}
