// SPDX-License-Identifier: Apache-2.0

package workflows

import (
	"context"

	"github.com/automa-saga/automa"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/internal/workflows/steps"
)

const (
	UpdateWorkflowId = "update"

	UpdatePrepareWorkflowId        = "update-prepare"
	UpdateFetchComponentWorkflowId = "update-fetch-component"
	UpdateStageInstallerWorkflowId = "update-stage-installer"
	UpdateApplyComponentWorkflowId = "update-apply-component"
)

// Progress checkpoints of the update workflow.
const (
	updateDownloadFrom = 20
	updateDownloadTo   = 45
	updateStage        = 50
	updateExtractFrom  = 60
	updateExtractTo    = 80
	updatePersist      = 90
)

// An update is run as a plan of small workflows instead of a single one: the component and the
// installer are updated independently, so a failure on one side must not stop the other.
// Applying the component depends on its fetch and is only run when the fetch succeeded.

// NewUpdatePrepareWorkflow reads the release state and resolves both version pairs.
func NewUpdatePrepareWorkflow(run *steps.Run) *automa.WorkflowBuilder {
	return updateWorkflow(UpdatePrepareWorkflowId, "Checking for updates",
		steps.ReadReleaseState(run),
		steps.ResolveLatestVersions(run),
	)
}

// NewFetchComponentWorkflow downloads the newer component archive.
func NewFetchComponentWorkflow(run *steps.Run) *automa.WorkflowBuilder {
	return updateWorkflow(UpdateFetchComponentWorkflowId, "Fetching component update",
		steps.DownloadComponent(run, updateDownloadFrom, updateDownloadTo),
	)
}

// NewStageInstallerWorkflow stages the newer installer for a manual restart.
func NewStageInstallerWorkflow(run *steps.Run) *automa.WorkflowBuilder {
	return updateWorkflow(UpdateStageInstallerWorkflowId, "Staging installer update",
		steps.StageInstaller(run, updateStage),
	)
}

// NewApplyComponentWorkflow extracts the fetched component over the installed one and records it.
func NewApplyComponentWorkflow(run *steps.Run) *automa.WorkflowBuilder {
	return updateWorkflow(UpdateApplyComponentWorkflowId, "Applying component update",
		steps.ExtractComponent(run, updateExtractFrom, updateExtractTo),
		steps.PersistComponentUpdate(run, updatePersist),
	)
}

func updateWorkflow(id, title string, builders ...automa.Builder) *automa.WorkflowBuilder {
	return automa.NewWorkflowBuilder().WithId(id).Steps(builders...).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, title)
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "%s failed", title)
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "%s finished", title)
		})
}
