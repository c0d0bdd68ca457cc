// SPDX-License-Identifier: Apache-2.0

package common

import (
	"context"
	"fmt"
	"time"

	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/internal/doctor"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	FlagPath = FlagDefinition[string]{
		Name:        "path",
		ShortName:   "p",
		Description: "Absolute install folder. Defaults to the last used folder",
		Default:     "",
	}

	FlagComponentVersion = FlagDefinition[string]{
		Name:        "component-version",
		ShortName:   "",
		Description: "Install this component version instead of the latest release",
		Default:     "",
	}

	FlagDeleteArchive = FlagDefinition[bool]{
		Name:        "delete-archive",
		ShortName:   "",
		Description: "Delete the downloaded archive after extraction instead of keeping it in the install folder",
		Default:     false,
	}

	FlagCreateServer = FlagDefinition[bool]{
		Name:        "create-server",
		ShortName:   "s",
		Description: "Provision a server instance next to the component",
		Default:     false,
	}

	FlagInteractive = FlagDefinition[bool]{
		Name:        "interactive",
		ShortName:   "i",
		Description: "Ask for the install options instead of reading them from flags",
		Default:     false,
	}

	FlagReport = FlagDefinition[string]{
		Name:        "report",
		ShortName:   "",
		Description: "Write the workflow report to this file",
		Default:     "",
	}

	FlagNoProgress = FlagDefinition[bool]{
		Name:        "no-progress",
		ShortName:   "",
		Description: "Print progress as plain lines instead of a progress bar",
		Default:     false,
	}

	FlagWait = FlagDefinition[time.Duration]{
		Name:        "wait",
		ShortName:   "w",
		Description: "How long to wait for another workflow on the same folder to finish before giving up",
		Default:     0,
	}
)

// FlagDefinition defines a command-line flag typed by T.
type FlagDefinition[T any] struct {
	Name        string
	ShortName   string
	Description string
	Default     T
}

func (fp *FlagDefinition[T]) valueFrom(flags *pflag.FlagSet) (T, error) {
	var zero T
	var v any
	var err error

	switch any(zero).(type) {
	case string:
		v, err = flags.GetString(fp.Name)
	case bool:
		v, err = flags.GetBool(fp.Name)
	case int:
		v, err = flags.GetInt(fp.Name)
	case time.Duration:
		v, err = flags.GetDuration(fp.Name)
	default:
		return zero, fmt.Errorf("unsupported flag type: %T", zero)
	}

	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Value extracts the flag value of cmd, looking into persistent flags of parent commands as well.
func (fp *FlagDefinition[T]) Value(cmd *cobra.Command, args []string) (T, error) {
	if args == nil {
		args = []string{}
	}

	if err := cmd.ParseFlags(args); err != nil {
		var zero T
		return zero, errorx.InternalError.Wrap(err, "failed to parse flags for command %s", cmd.Name())
	}

	return fp.valueFrom(cmd.Flags())
}

// SetVarP sets up the persistent flag and exits on error.
func (fp *FlagDefinition[T]) SetVarP(cmd *cobra.Command, p *T, required bool) {
	if err := fp.bind(cmd.PersistentFlags(), cmd, p); err != nil {
		doctor.CheckErr(context.Background(), err, fmt.Sprintf("failed to set flag %s", fp.Name))
	}
	if required {
		if err := cmd.MarkPersistentFlagRequired(fp.Name); err != nil {
			doctor.CheckErr(context.Background(), errorx.InternalError.Wrap(err, "failed to mark flag %s as required", fp.Name))
		}
	}
}

// SetVar sets up the non-persistent flag and exits on error.
func (fp *FlagDefinition[T]) SetVar(cmd *cobra.Command, p *T, required bool) {
	if err := fp.bind(cmd.Flags(), cmd, p); err != nil {
		doctor.CheckErr(context.Background(), err, fmt.Sprintf("failed to set flag %s", fp.Name))
	}
	if required {
		if err := cmd.MarkFlagRequired(fp.Name); err != nil {
			doctor.CheckErr(context.Background(), errorx.InternalError.Wrap(err, "failed to mark flag %s as required", fp.Name))
		}
	}
}

func (fp *FlagDefinition[T]) bind(flags *pflag.FlagSet, cmd *cobra.Command, p *T) error {
	if p == nil {
		return errorx.IllegalArgument.New("pointer for flag %s is nil", fp.Name)
	}
	if cmd == nil {
		return errorx.IllegalArgument.New("command for flag %s is nil", fp.Name)
	}

	switch ptr := any(p).(type) {
	case *string:
		flags.StringVarP(ptr, fp.Name, fp.ShortName, any(fp.Default).(string), fp.Description)
	case *bool:
		flags.BoolVarP(ptr, fp.Name, fp.ShortName, any(fp.Default).(bool), fp.Description)
	case *int:
		flags.IntVarP(ptr, fp.Name, fp.ShortName, any(fp.Default).(int), fp.Description)
	case *time.Duration:
		flags.DurationVarP(ptr, fp.Name, fp.ShortName, any(fp.Default).(time.Duration), fp.Description)
	default:
		return errorx.IllegalArgument.New("unsupported flag type %T for flag %s", p, fp.Name)
	}

	return nil
}
