// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/cmd/kitinstaller/commands/version"
	"github.com/serverkit/kitinstaller/internal/config"
	"github.com/serverkit/kitinstaller/internal/doctor"
	"github.com/spf13/cobra"
)

// examples:
// ./kitinstaller install --path /opt/serverkit --create-server
// ./kitinstaller update
// ./kitinstaller check -o json

var (
	flagConfig       string
	flagVersion      bool
	flagOutputFormat string

	rootCmd = &cobra.Command{
		Use:   "kitinstaller",
		Short: "Installs and updates the ServerKit toolkit",
		Long:  "kitinstaller - installs the ServerKit toolkit, provisions a server instance and keeps both up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagVersion {
				version.PrintVersion(cmd, flagOutputFormat)
				return nil
			}

			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path")

	rootCmd.Flags().BoolVarP(&flagVersion, "version", "v", false, "Show version")
	rootCmd.PersistentFlags().StringVarP(&flagOutputFormat, "output", "o", "yaml", "Output format (yaml|json)")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(version.GetCmd())
}

// Execute executes the root command.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errorx.IllegalArgument.New("context is required")
	}

	cobra.OnInitialize(func() {
		initConfig(ctx)
	})

	_, err := rootCmd.ExecuteContextC(ctx)
	if err != nil {
		return err
	}

	return nil
}

func initConfig(ctx context.Context) {
	err := config.Initialize(flagConfig)
	if err != nil {
		doctor.CheckErr(ctx, err)
	}

	err = logx.Initialize(config.Get().Log)
	if err != nil {
		doctor.CheckErr(ctx, err)
	}
}
