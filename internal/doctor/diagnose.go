// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/internal/config"
	"github.com/serverkit/kitinstaller/internal/version"
	"github.com/serverkit/kitinstaller/internal/workflows"
	"github.com/serverkit/kitinstaller/pkg/plock"
	"github.com/serverkit/kitinstaller/pkg/software"
)

// TraceIdKey is the context key the command line stores its trace id under.
const TraceIdKey = "traceId"

type ErrorDiagnosis struct {
	Error              error             `yaml:"error" json:"error"`
	Message            string            `yaml:"message" json:"message"`
	Cause              string            `yaml:"cause" json:"cause"`
	ErrorType          string            `yaml:"errorType" json:"errorType"`
	Kind               string            `yaml:"kind" json:"kind"`
	Details            []string          `yaml:"details,omitempty" json:"details,omitempty"`
	TraceId            string            `yaml:"traceId" json:"traceId"`
	Commit             string            `yaml:"commit" json:"commit"`
	Version            string            `yaml:"version" json:"version"`
	Pid                int               `yaml:"pid" json:"pid"`
	Code               int               `yaml:"code" json:"code"`
	Logfile            string            `yaml:"log" json:"log"`
	ProfilingSnapshots map[string]string `yaml:"ProfilingSnapshots" json:"profilingSnapshots"`
	Resolution         []string          `yaml:"steps" json:"steps"`
}

func toErrorCode(err error) int {
	switch {
	case errorx.IsOfType(err, errorx.IllegalArgument):
		return 10400
	case errorx.HasTrait(err, errorx.Duplicate()):
		return 10409
	case errorx.IsOfType(err, software.NetworkError):
		return 10502
	case errorx.IsOfType(err, software.CorruptArchiveError):
		return 10422
	case errorx.IsOfType(err, software.FilesystemError):
		return 10507
	case errorx.IsOfType(err, software.LaunchError):
		return 10503
	default:
		if errorx.HasTrait(err, errorx.NotFound()) {
			return 10404
		}
		return 10500
	}
}

func toErrorMessage(err error) (string, string) {
	e := errorx.Cast(err)
	if e == nil {
		return err.Error(), ""
	}

	if e.Cause() == nil {
		return e.Message(), ""
	}
	return e.Message(), fmt.Sprintf("%s", e.Cause())
}

func findResolution(err error) []string {
	switch {
	case errorx.IsOfType(err, workflows.WorkflowBusyError), errorx.IsOfType(err, plock.LockedError):
		return []string{
			"Another install or update is running against the same folder.",
			"Wait for it to finish, then try again.",
		}
	case errorx.IsOfType(err, errorx.IllegalArgument):
		if arg, ok := errorx.ExtractProperty(err, errorx.PropertyPayload()); ok {
			return []string{fmt.Sprintf("Ensure %q is provided.", arg)}
		}
		return []string{"Ensure all required arguments are provided and the install path is absolute."}
	case errorx.IsOfType(err, config.NotFoundError):
		if arg, ok := errorx.ExtractProperty(err, errorx.PropertyPayload()); ok {
			return []string{fmt.Sprintf("Ensure configuration file %q exists, is correctly formatted and accessible", arg)}
		}
		return []string{"Ensure configuration file exists and is accessible."}
	case errorx.IsOfType(err, config.MalformedError):
		return []string{
			"Check the types of the values in the installer config file.",
			"Durations need a unit, such as `5s` or `30m`.",
		}
	}

	switch software.Kind(err) {
	case software.KindNetwork:
		return []string{
			"Check your internet connection and proxy settings.",
			"Ensure the release server configured under `remote` is reachable.",
		}
	case software.KindCorruptArchive:
		return []string{
			"The downloaded archive is damaged or was tampered with.",
			"Run the command again to download a fresh copy.",
		}
	case software.KindFilesystem:
		return []string{
			"Ensure the install folder is writable and the disk is not full.",
			"Close programs that may hold files of the install folder open.",
		}
	case software.KindVerification:
		return []string{
			"The install is incomplete. Run the install again into the same folder.",
		}
	case software.KindLaunch:
		return []string{
			"The server executable could not be started on this machine.",
			"Check that security software does not block it, then reinstall with the server option.",
		}
	default:
		return []string{"Check error message for details or contact support"}
	}
}

// diagnosticsDir is where snapshots of a failed run are written.
func diagnosticsDir() string {
	return filepath.Join(os.TempDir(), "kitinstaller", "diagnostics")
}

func takeProfilingSnapshots(ex error) map[string]string {
	timestamp := time.Now().Format("20060102-150405")

	snapshotDir := filepath.Join(diagnosticsDir(), timestamp)
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		logx.As().Warn().Err(err).Str("dir", snapshotDir).Msg("Failed to create diagnostics directory")
		return nil
	}

	files := make(map[string]string)

	stacktraceFile := filepath.Join(snapshotDir, "stacktrace-"+timestamp+".txt")
	if f, err := os.Create(stacktraceFile); err == nil {
		if ex != nil {
			_, _ = fmt.Fprintf(f, "%+v\n", ex)
		} else {
			buf := make([]byte, 1<<16)
			n := runtime.Stack(buf, true)
			_, _ = f.Write(buf[:n])
		}
		_ = f.Close()
		files["stacktrace"] = stacktraceFile
	}

	for _, name := range []string{"goroutine", "heap"} {
		file := filepath.Join(snapshotDir, "pprof-"+name+"-"+timestamp+".pb.gz")
		f, err := os.Create(file)
		if err != nil {
			logx.As().Warn().Err(err).Str("file_path", file).Msg("Failed to create profile file")
			continue
		}
		if name == "heap" {
			runtime.GC()
		}
		if err := pprof.Lookup(name).WriteTo(f, 0); err == nil {
			files[name] = file
		} else {
			logx.As().Warn().Err(err).Str("profile", name).Msg("Failed to write profile")
		}
		_ = f.Close()
	}

	return files
}

// Diagnose attempts to find a resolution and provide a human friendly error response
func Diagnose(ctx context.Context, ex error) *ErrorDiagnosis {
	traceId, _ := ctx.Value(TraceIdKey).(string)

	msg, cause := toErrorMessage(ex)
	return &ErrorDiagnosis{
		Error:      ex,
		ErrorType:  errorx.GetTypeName(ex),
		Kind:       software.Kind(ex),
		Details:    software.SafeErrorDetails(errorx.Cast(ex)),
		Message:    msg,
		Cause:      cause,
		TraceId:    traceId,
		Code:       toErrorCode(ex),
		Commit:     version.Commit(),
		Version:    version.Number(),
		Pid:        os.Getpid(),
		Logfile:    config.Get().Log.Filename,
		Resolution: findResolution(ex),
	}
}

// Print writes the diagnosis of resp and the optional instructions to w.
func Print(w io.Writer, resp *ErrorDiagnosis, instructions ...string) {
	out := []string{"", banner(Red, "Error Diagnostics")}
	out = append(out, field(Red, Bold+White, "Error", resp.Message))
	if resp.Cause != "" {
		out = append(out, field(Red, Bold+White, "Cause", resp.Cause))
	}
	out = append(out,
		field(Red, Bold+White, "Error Kind", resp.Kind),
		field(Red, Bold+White, "Error Type", resp.ErrorType),
	)
	if len(resp.Details) > 0 {
		out = append(out, field(Red, Bold+White, "Details", strings.Join(resp.Details, ", ")))
	}
	out = append(out,
		field(Red, Bold+White, "Error Code", strconv.Itoa(resp.Code)),
		field(Red, Gray, "Commit", resp.Commit),
		field(Red, Gray, "Pid", strconv.Itoa(resp.Pid)),
		field(Red, Gray, "TraceId", resp.TraceId),
		field(Red, Gray, "Version", resp.Version),
	)
	if resp.Logfile != "" {
		out = append(out, field(Red, Cyan, "Logfile", resp.Logfile))
	}
	if len(resp.ProfilingSnapshots) > 0 {
		out = append(out, field(Red, Cyan, "Profiling", ""))
		for key, snapshotFile := range resp.ProfilingSnapshots {
			out = append(out, line(Red, "  "+Cyan+"- "+key+":"+Reset+" "+snapshotFile))
		}
	}
	out = append(out, banner(Red, ""), "", banner(Yellow, "Resolution"))

	if len(instructions) > 0 && instructions[0] != "" {
		for _, text := range strings.Split(instructions[0], "\n") {
			if text == "" {
				out = append(out, line(Yellow, ""))
			} else {
				out = append(out, line(Yellow, Bold+White+text+Reset))
			}
		}
		if len(resp.Resolution) > 0 {
			out = append(out, line(Yellow, ""))
		}
	}
	for _, r := range resp.Resolution {
		out = append(out, line(Yellow, White+r+Reset))
	}
	out = append(out, banner(Yellow, ""))

	_, _ = fmt.Fprintln(w, strings.Join(out, "\n"))
}

// CheckErr prints diagnosis and exit with error code 1
// Optional instructions can be provided to give additional context to the user
func CheckErr(ctx context.Context, err error, instructions ...string) {
	logx.As().Error().Err(err).Msg("error occurred")

	resp := Diagnose(ctx, err)
	if software.Kind(err) == software.KindInternal && !errorx.IsOfType(err, errorx.IllegalArgument) {
		resp.ProfilingSnapshots = takeProfilingSnapshots(err)
	}

	Print(os.Stderr, resp, instructions...)
	os.Exit(1)
}

// CheckReportErr diagnoses a failed workflow. Instructions recorded in the report metadata are shown
// ahead of the default resolution.
func CheckReportErr(ctx context.Context, report *automa.Report, err error) {
	CheckErr(ctx, err, GetInstructionsFromReport(report))
}

// GetInstructionsFromReport recursively searches for instructions in report metadata.
// Returns the first non-empty instructions found in the report tree, or an empty string if none exist.
func GetInstructionsFromReport(report *automa.Report) string {
	if report == nil {
		return ""
	}

	if instructions, ok := report.Metadata["instructions"]; ok {
		return instructions
	}

	for _, stepReport := range report.StepReports {
		if instructions := GetInstructionsFromReport(stepReport); instructions != "" {
			return instructions
		}
	}

	return ""
}
