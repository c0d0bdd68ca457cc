// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/cmd/kitinstaller/commands/common"
	"github.com/serverkit/kitinstaller/internal/config"
	"github.com/serverkit/kitinstaller/internal/layout"
	"github.com/serverkit/kitinstaller/internal/state"
	"github.com/serverkit/kitinstaller/internal/workflows"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// checkOutput is what the check command prints.
type checkOutput struct {
	workflows.UpdateCheck `yaml:",inline" json:",inline"`
	Installed             *state.ReleaseState `yaml:"installed,omitempty" json:"installed,omitempty"`
	Layout                *layout.Manifest    `yaml:"layout,omitempty" json:"layout,omitempty"`
}

var (
	flagCheckPath string

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check for updates without changing anything",
		Long:  "Compare the installed toolkit and the running installer with the latest releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			o := workflows.NewOrchestrator(config.Get())
			defer o.Close()

			check, err := o.CheckForUpdates(cmd.Context(), flagCheckPath)
			if err != nil {
				return err
			}

			out := checkOutput{
				UpdateCheck: check,
				Installed:   state.LoadReleaseState(check.Root),
			}
			if m, err := layout.ReadManifest(check.Root); err == nil {
				out.Layout = m
			}

			text, err := formatCheck(out, flagOutputFormat)
			if err != nil {
				return err
			}
			cmd.Println(text)
			return nil
		},
	}
)

func init() {
	common.FlagPath.SetVar(checkCmd, &flagCheckPath, false)
}

func formatCheck(out checkOutput, format string) (string, error) {
	var b []byte
	var err error
	switch strings.ToLower(format) {
	case "json":
		b, err = json.MarshalIndent(out, "", "  ")
	case "yaml", "":
		b, err = yaml.Marshal(out)
	default:
		return "", errorx.IllegalArgument.New("unsupported output format: %s", format)
	}
	if err != nil {
		return "", errorx.IllegalFormat.Wrap(err, "failed to marshal check result")
	}
	return strings.TrimSpace(string(b)), nil
}
