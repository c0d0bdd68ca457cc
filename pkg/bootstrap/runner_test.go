// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/pkg/software"
	"github.com/stretchr/testify/require"
)

const fakeServerEnv = "KITINSTALLER_FAKE_SERVER"

// TestMain lets the test binary double as a fake server executable.
func TestMain(m *testing.M) {
	switch os.Getenv(fakeServerEnv) {
	case "":
		os.Exit(m.Run())
	case "first-run":
		_ = os.WriteFile("generated.cfg", []byte("port=7777\n"), 0o644)
		time.Sleep(time.Minute)
		os.Exit(0)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		_ = os.WriteFile("generated.cfg", []byte("port=7777\n"), 0o644)
		time.Sleep(time.Minute)
		os.Exit(0)
	case "quick-exit":
		os.Exit(3)
	case "linger":
		time.Sleep(20 * time.Second)
		os.Exit(0)
	case "spawn-and-exit":
		// leaves a child behind that shares this process's stdout and stderr
		child := exec.Command(os.Args[0])
		child.Env = append(os.Environ(), fakeServerEnv+"=linger")
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		_ = child.Start()
		os.Exit(0)
	}
}

func TestRunner_Run_GeneratesFirstRunFiles(t *testing.T) {
	t.Setenv(fakeServerEnv, "first-run")
	workDir := t.TempDir()

	start := time.Now()
	err := NewRunner(WithGracePeriod(time.Second)).Run(context.Background(), os.Args[0], workDir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), time.Second)

	content, err := os.ReadFile(filepath.Join(workDir, "generated.cfg"))
	require.NoError(t, err)
	require.Equal(t, "port=7777\n", string(content))
}

func TestRunner_Run_KillsProcessIgnoringTerminate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("terminate is already a kill on windows")
	}

	t.Setenv(fakeServerEnv, "stubborn")
	workDir := t.TempDir()

	r := NewRunner(WithGracePeriod(time.Second))
	r.exitWait = 200 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), os.Args[0], workDir)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not return after killing the process")
	}

	require.FileExists(t, filepath.Join(workDir, "generated.cfg"))
}

func TestRunner_Run_ExitBeforeGracePeriod(t *testing.T) {
	t.Setenv(fakeServerEnv, "quick-exit")

	start := time.Now()
	err := NewRunner(WithGracePeriod(30*time.Second)).Run(context.Background(), os.Args[0], t.TempDir())
	require.NoError(t, err, "the exit code of the bootstrapped process is ignored")
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestRunner_Run_ContextCancelled(t *testing.T) {
	t.Setenv(fakeServerEnv, "first-run")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewRunner(WithGracePeriod(30*time.Second)).Run(ctx, os.Args[0], t.TempDir())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestRunner_Run_LaunchError(t *testing.T) {
	tmp := t.TempDir()

	err := NewRunner().Run(context.Background(), filepath.Join(tmp, "missing-server"), tmp)
	require.Error(t, err)
	require.True(t, errorx.IsOfType(err, software.LaunchError))
	require.Equal(t, software.KindLaunch, software.Kind(err))

	err = NewRunner().Run(context.Background(), tmp, tmp)
	require.True(t, errorx.IsOfType(err, software.LaunchError))

	if runtime.GOOS != "windows" {
		notExecutable := filepath.Join(tmp, "server")
		require.NoError(t, os.WriteFile(notExecutable, []byte("not a program"), 0o644))

		err = NewRunner().Run(context.Background(), notExecutable, tmp)
		require.True(t, errorx.IsOfType(err, software.LaunchError))
	}
}

func TestRunner_Command_StreamsUnset(t *testing.T) {
	cmd := NewRunner().command(os.Args[0], t.TempDir())
	require.Nil(t, cmd.Stdin)
	require.Nil(t, cmd.Stdout)
	require.Nil(t, cmd.Stderr)
}

func TestRunner_Run_ChildOutlivesServer(t *testing.T) {
	t.Setenv(fakeServerEnv, "spawn-and-exit")

	start := time.Now()
	err := NewRunner(WithGracePeriod(30*time.Second)).Run(context.Background(), os.Args[0], t.TempDir())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 10*time.Second, "a lingering child must not hold up the bootstrap")
}
