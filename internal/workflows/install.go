// SPDX-License-Identifier: Apache-2.0

package workflows

import (
	"context"

	"github.com/automa-saga/automa"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/internal/workflows/steps"
)

const InstallWorkflowId = "install"

// Progress checkpoints of the install workflow.
const (
	installDownloadFrom   = 15
	installDownloadTo     = 45
	installExtractFrom    = 50
	installExtractTo      = 70
	installDispose        = 72
	installServerTree     = 75
	installServerExe      = 80
	installBootstrap      = 85
	installLaunchScript   = 88
	installRelocateConfig = 91
	installVerify         = 94
	installPersist        = 97
)

// InstallRequest describes one install. It is not modified once the workflow starts.
type InstallRequest struct {
	// Root is the absolute base install directory.
	Root string `json:"root" yaml:"root"`
	// DeleteArchive removes the downloaded archive after extraction instead of keeping it under the root.
	DeleteArchive bool `json:"deleteArchive" yaml:"deleteArchive"`
	// CreateServer provisions a bundled server instance next to the component.
	CreateServer bool `json:"createServer" yaml:"createServer"`
	// Version pins the component version; empty means the latest release.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// NewInstallWorkflow sequences the install of run's layout. The workflow stops at the first failing
// step and leaves what was already placed on disk as it is.
func NewInstallWorkflow(run *steps.Run) *automa.WorkflowBuilder {
	builders := []automa.Builder{
		steps.CreateInstallDirs(run),
		steps.ResolveComponentVersion(run),
		steps.DownloadComponent(run, installDownloadFrom, installDownloadTo),
		steps.ExtractComponent(run, installExtractFrom, installExtractTo),
		steps.DisposeArchive(run, installDispose),
	}

	if run.CreateServer && run.Layout.Server != nil {
		builders = append(builders,
			steps.CreateServerTree(run, installServerTree),
			steps.FetchServerExecutable(run, installServerExe),
			steps.BootstrapServer(run, installBootstrap),
			steps.WriteLaunchScript(run, installLaunchScript),
			steps.RelocateServerConfig(run, installRelocateConfig),
		)
	}

	builders = append(builders,
		steps.VerifyLayout(run, installVerify),
		steps.PersistInstall(run, installPersist),
	)

	return automa.NewWorkflowBuilder().WithId(InstallWorkflowId).Steps(builders...).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StepStart(ctx, stp, "Installing into %s", run.Layout.Root)
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepFailure(ctx, stp, rpt, "Install into %s failed", run.Layout.Root)
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StepCompletion(ctx, stp, rpt, "Install into %s finished", run.Layout.Root)
		})
}
