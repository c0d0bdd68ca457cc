// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/automa-saga/automa"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/internal/workflows"
	"github.com/serverkit/kitinstaller/pkg/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnose_Kinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		kind       string
		code       int
		resolution string
	}{
		{
			name:       "network",
			err:        software.NewNetworkError(errors.New("dial tcp: refused"), "https://example.com/a.zip", 0),
			kind:       software.KindNetwork,
			code:       10502,
			resolution: "internet connection",
		},
		{
			name:       "checksum",
			err:        software.NewChecksumError("/tmp/a.zip", "aa", "bb"),
			kind:       software.KindCorruptArchive,
			code:       10422,
			resolution: "damaged",
		},
		{
			name:       "filesystem",
			err:        software.NewFilesystemError(errors.New("permission denied"), "/opt/kit"),
			kind:       software.KindFilesystem,
			code:       10507,
			resolution: "writable",
		},
		{
			name:       "verification",
			err:        software.NewVerificationError("/opt/kit/toolkit"),
			kind:       software.KindVerification,
			code:       10404,
			resolution: "incomplete",
		},
		{
			name:       "busy",
			err:        workflows.NewWorkflowBusyError("/opt/kit"),
			kind:       software.KindInternal,
			code:       10409,
			resolution: "Another install or update",
		},
		{
			name:       "illegal argument",
			err:        errorx.IllegalArgument.New("path must be absolute"),
			kind:       software.KindInternal,
			code:       10400,
			resolution: "absolute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.WithValue(context.Background(), TraceIdKey, "trace-1")
			d := Diagnose(ctx, tt.err)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.code, d.Code)
			assert.Equal(t, "trace-1", d.TraceId)
			require.NotEmpty(t, d.Resolution)
			assert.Contains(t, d.Resolution[0]+" "+d.Resolution[len(d.Resolution)-1], tt.resolution)
		})
	}
}

func TestDiagnose_PlainError(t *testing.T) {
	d := Diagnose(context.Background(), errors.New("boom"))
	assert.Equal(t, "boom", d.Message)
	assert.Empty(t, d.Cause)
	assert.Empty(t, d.TraceId)
	assert.Equal(t, 10500, d.Code)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	d := Diagnose(context.Background(), software.NewFilesystemError(errors.New("disk full"), "/opt/kit"))

	Print(&buf, d, "Free some space\n\nthen retry")

	out := buf.String()
	assert.Contains(t, out, "Error Diagnostics")
	assert.Contains(t, out, software.KindFilesystem)
	assert.Contains(t, out, "Free some space")
	assert.Contains(t, out, "then retry")
	assert.Contains(t, out, "writable")
	assert.Contains(t, out, "Details:")
	assert.Contains(t, out, "/opt/kit")
}

func TestDiagnose_Details(t *testing.T) {
	d := Diagnose(context.Background(), software.NewNetworkError(errors.New("bad gateway"), "https://example.com/kit.zip", 502))
	assert.Equal(t, []string{"https://example.com/kit.zip", "502"}, d.Details)

	d = Diagnose(context.Background(), software.NewChecksumError("/tmp/kit.zip", "aa", "bb"))
	assert.Equal(t, []string{"/tmp/kit.zip", "aa", "bb"}, d.Details)

	assert.Empty(t, Diagnose(context.Background(), errors.New("boom")).Details)
}

func TestGetInstructionsFromReport(t *testing.T) {
	assert.Empty(t, GetInstructionsFromReport(nil))

	report := &automa.Report{
		StepReports: []*automa.Report{
			{Metadata: map[string]string{"version": "1.2.0"}},
			{Metadata: map[string]string{"instructions": "Close the running server first"}},
		},
	}
	assert.Equal(t, "Close the running server first", GetInstructionsFromReport(report))
}

func TestBanner(t *testing.T) {
	b := banner(Red, "Resolution")
	plain := strings.TrimSuffix(strings.TrimPrefix(b, Bold+Red), Reset)
	assert.Len(t, plain, bannerWidth)
	assert.Contains(t, plain, "* Resolution *")

	plain = strings.TrimSuffix(strings.TrimPrefix(banner(Yellow, ""), Bold+Yellow), Reset)
	assert.Equal(t, strings.Repeat("*", bannerWidth), plain)
}
