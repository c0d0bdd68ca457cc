// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/serverkit/kitinstaller/cmd/kitinstaller/commands/common"
	"github.com/serverkit/kitinstaller/internal/config"
	"github.com/serverkit/kitinstaller/internal/state"
	"github.com/serverkit/kitinstaller/internal/workflows"
	"github.com/serverkit/kitinstaller/pkg/sanity"
	"github.com/spf13/cobra"
)

var (
	flagInstallPath      string
	flagComponentVersion string
	flagDeleteArchive    bool
	flagCreateServer     bool
	flagInteractive      bool
	flagReport           string
	flagNoProgress       bool
	flagWait             time.Duration

	installCmd = &cobra.Command{
		Use:   "install",
		Short: "Install the toolkit into a folder",
		Long:  "Download the toolkit into a folder and optionally provision a server instance next to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			req := workflows.InstallRequest{
				Root:          flagInstallPath,
				DeleteArchive: flagDeleteArchive,
				CreateServer:  flagCreateServer,
				Version:       flagComponentVersion,
			}
			if req.Root == "" {
				req.Root = state.NewConfigStore(cfg.Install.ConfigFile, cfg.Install.ComponentDir).
					LoadInstallationPath(cfg.Install.DefaultPath)
			}

			if flagInteractive {
				if err := askInstallOptions(&req); err != nil {
					return err
				}
			}

			res := common.RunWorkflow(cmd, common.RunOptions{
				Title:      fmt.Sprintf("Installing into %s", req.Root),
				NoProgress: flagNoProgress,
				Wait:       flagWait,
				ReportPath: flagReport,
			}, func(ctx context.Context, o *workflows.Orchestrator) (<-chan workflows.Result, error) {
				return o.StartInstall(ctx, req)
			})
			common.CheckResult(cmd, res, flagReport)

			cmd.Printf("Installed version %s into %s\n", res.ComponentVersion, res.Root)
			if res.KeptArchive != "" {
				cmd.Printf("Archive kept at %s\n", res.KeptArchive)
			}
			return nil
		},
	}
)

func init() {
	common.FlagPath.SetVar(installCmd, &flagInstallPath, false)
	common.FlagComponentVersion.SetVar(installCmd, &flagComponentVersion, false)
	common.FlagDeleteArchive.SetVar(installCmd, &flagDeleteArchive, false)
	common.FlagCreateServer.SetVar(installCmd, &flagCreateServer, false)
	common.FlagInteractive.SetVar(installCmd, &flagInteractive, false)
	common.FlagReport.SetVar(installCmd, &flagReport, false)
	common.FlagNoProgress.SetVar(installCmd, &flagNoProgress, false)
	common.FlagWait.SetVar(installCmd, &flagWait, false)
}

// askInstallOptions lets the user confirm or change req before the install starts.
func askInstallOptions(req *workflows.InstallRequest) error {
	keepArchive := !req.DeleteArchive

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Install folder").
				Description("An absolute path; it is created when missing").
				Value(&req.Root).
				Validate(func(s string) error {
					_, err := sanity.ValidateInstallPath(s)
					return err
				}),
			huh.NewInput().
				Title("Component version").
				Description("Leave empty for the latest release").
				Value(&req.Version).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					return sanity.ValidateVersionTag(s)
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Provision a server instance?").
				Value(&req.CreateServer),
			huh.NewConfirm().
				Title("Keep the downloaded archive?").
				Value(&keepArchive),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	req.DeleteArchive = !keepArchive
	return nil
}
