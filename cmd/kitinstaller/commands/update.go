// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/serverkit/kitinstaller/cmd/kitinstaller/commands/common"
	"github.com/serverkit/kitinstaller/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	flagUpdatePath string

	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Update an installed toolkit",
		Long: "Update the toolkit of a folder to the latest release and stage a newer installer, if any. " +
			"A staged installer is applied by replacing the running installer with it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			res := common.RunWorkflow(cmd, common.RunOptions{
				Title:      "Updating",
				NoProgress: flagNoProgress,
				Wait:       flagWait,
				ReportPath: flagReport,
			}, func(ctx context.Context, o *workflows.Orchestrator) (<-chan workflows.Result, error) {
				return o.StartUpdate(ctx, flagUpdatePath)
			})

			if res.StagedInstaller != "" {
				cmd.Printf("Installer %s staged at %s\n", res.Installer.LatestRemote, res.StagedInstaller)
			}
			common.CheckResult(cmd, res, flagReport)

			switch {
			case res.Component.UpdateAvailable:
				cmd.Printf("Updated %s from %s to %s\n", res.Root, res.Component.CurrentLocal, res.ComponentVersion)
			case !res.Installer.UpdateAvailable:
				cmd.Printf("%s is up to date\n", res.Root)
			}
			return nil
		},
	}
)

func init() {
	common.FlagPath.SetVar(updateCmd, &flagUpdatePath, false)
	common.FlagReport.SetVar(updateCmd, &flagReport, false)
	common.FlagNoProgress.SetVar(updateCmd, &flagNoProgress, false)
	common.FlagWait.SetVar(updateCmd, &flagWait, false)
}
