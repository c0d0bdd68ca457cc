// SPDX-License-Identifier: Apache-2.0

package workflows

import (
	"github.com/joomcode/errorx"
)

var (
	ErrorsNamespace   = errorx.NewNamespace("workflows")
	WorkflowBusyError = ErrorsNamespace.NewType("workflow_busy", errorx.Duplicate())
	ClosedError       = ErrorsNamespace.NewType("closed")

	installRootProperty = errorx.RegisterPrintableProperty("install_root")
)

// NewWorkflowBusyError reports that a workflow is already running against root.
func NewWorkflowBusyError(root string) *errorx.Error {
	return WorkflowBusyError.New("a workflow is already running in '%s'", root).
		WithProperty(installRootProperty, root)
}
