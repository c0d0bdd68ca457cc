// SPDX-License-Identifier: Apache-2.0

package workflows

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/automa-saga/automa"
	"github.com/golang/mock/gomock"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/internal/config"
	"github.com/serverkit/kitinstaller/internal/layout"
	"github.com/serverkit/kitinstaller/internal/release"
	"github.com/serverkit/kitinstaller/internal/state"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/internal/workflows/steps"
	"github.com/serverkit/kitinstaller/pkg/plock"
	"github.com/serverkit/kitinstaller/pkg/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeServerScript = "#!/bin/sh\necho port=7777 > server.cfg\nexec sleep 30\n"

// fakeRemote serves the release endpoints of the component, the installer and the server executable.
type fakeRemote struct {
	mu sync.Mutex

	componentTag      string
	componentSHA      string
	componentArchives map[string][]byte
	installerTag      string
	installerArchives map[string][]byte
	serverBin         []byte

	srv *httptest.Server
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()

	f := &fakeRemote{
		componentArchives: map[string][]byte{},
		installerArchives: map[string][]byte{},
		serverBin:         []byte(fakeServerScript),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /toolkit/latest", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		tag, sum := f.componentTag, f.componentSHA
		f.mu.Unlock()
		f.writeLatest(w, tag, sum)
	})
	mux.HandleFunc("GET /toolkit/archive/{file}", func(w http.ResponseWriter, r *http.Request) {
		f.writeArchive(w, f.componentArchives, r.PathValue("file"))
	})
	mux.HandleFunc("GET /kitinstaller/latest", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		tag := f.installerTag
		f.mu.Unlock()
		f.writeLatest(w, tag, "")
	})
	mux.HandleFunc("GET /kitinstaller/archive/{file}", func(w http.ResponseWriter, r *http.Request) {
		f.writeArchive(w, f.installerArchives, r.PathValue("file"))
	})
	mux.HandleFunc("GET /server/bin", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		body := f.serverBin
		f.mu.Unlock()
		if body == nil {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRemote) writeLatest(w http.ResponseWriter, tag, sum string) {
	if tag == "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"tag": tag, "sha256": sum})
}

func (f *fakeRemote) writeArchive(w http.ResponseWriter, archives map[string][]byte, file string) {
	f.mu.Lock()
	body, found := archives[strings.TrimSuffix(file, ".zip")]
	f.mu.Unlock()
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write(body)
}

func (f *fakeRemote) publishComponent(tag string, archive []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.componentTag = tag
	f.componentArchives[tag] = archive
}

func (f *fakeRemote) publishInstaller(tag string, archive []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installerTag = tag
	f.installerArchives[tag] = archive
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func testConfig(t *testing.T, f *fakeRemote) config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Remote.ComponentBaseURL = f.srv.URL + "/toolkit"
	cfg.Remote.InstallerBaseURL = f.srv.URL + "/kitinstaller"
	cfg.Remote.ResolveTimeout = 5 * time.Second
	cfg.Remote.DownloadTimeout = 10 * time.Second
	cfg.Remote.Retries = 0
	cfg.Remote.ChunkSize = 1024
	cfg.Install.DefaultPath = filepath.Join(dir, "default")
	cfg.Install.StagingDir = filepath.Join(dir, "staged")
	cfg.Install.ConfigFile = filepath.Join(dir, "kitinstaller.state")
	cfg.Server.ExecutableURL = f.srv.URL + "/server/bin"
	cfg.Server.ExecutableName = "server"
	cfg.Server.LaunchScript = "start.sh"
	cfg.Server.GraceDuration = 300 * time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

// progressLog collects the updates of every run.
type progressLog struct {
	mu      sync.Mutex
	updates []notify.Progress
}

func (p *progressLog) observe(u notify.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func (p *progressLog) all() []notify.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Progress(nil), p.updates...)
}

func requireMonotonic(t *testing.T, updates []notify.Progress) {
	t.Helper()

	for i := 1; i < len(updates); i++ {
		require.GreaterOrEqual(t, updates[i].Percent, updates[i-1].Percent, "percent went backwards at %d", i)
	}
}

func newTestOrchestrator(t *testing.T, cfg config.Config, opts ...Option) *Orchestrator {
	t.Helper()

	o := NewOrchestrator(cfg, append([]Option{WithInstallerVersion("1.0.0")}, opts...)...)
	t.Cleanup(o.Close)
	return o
}

func TestOrchestrator_Install_ComponentOnly(t *testing.T) {
	remote := newFakeRemote(t)
	archive := zipArchive(t, map[string]string{
		"toolkit-1.2.0/bin/tool.txt": "tool",
		"toolkit-1.2.0/README.md":    "readme",
	})
	remote.publishComponent("1.2.0", archive)

	progress := &progressLog{}
	cfg := testConfig(t, remote)
	o := newTestOrchestrator(t, cfg, WithObserver(progress.observe))

	root := filepath.Join(t.TempDir(), "My Kit")
	res := o.Install(context.Background(), InstallRequest{Root: root})
	require.NoError(t, res.Err)
	require.True(t, res.Succeeded())
	assert.Equal(t, "1.2.0", res.ComponentVersion)
	assert.NotEmpty(t, res.RunID)

	content, err := os.ReadFile(filepath.Join(root, "toolkit", "bin", "tool.txt"))
	require.NoError(t, err)
	assert.Equal(t, "tool", string(content))

	rs, err := state.ReadReleaseState(root)
	require.NoError(t, err)
	require.NotNil(t, rs)
	assert.Equal(t, "1.2.0", rs.ComponentVersion)
	assert.Equal(t, "1.0.0", rs.InstallerVersion)

	// kept archive is relocated under the root
	assert.Equal(t, filepath.Join(root, "archives", "1.2.0.zip"), res.KeptArchive)
	assert.FileExists(t, res.KeptArchive)

	assert.Equal(t, root, o.InstallationPath())

	m, err := layout.ReadManifest(root)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "1.2.0", m.ComponentVersion)
	assert.Nil(t, m.Server)

	updates := progress.all()
	require.NotEmpty(t, updates)
	requireMonotonic(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, notify.PhaseSucceeded, last.Phase)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, res.RunID, last.RunID)
}

func TestOrchestrator_Install_DeleteArchive(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))

	o := newTestOrchestrator(t, testConfig(t, remote))
	root := t.TempDir()

	res := o.Install(context.Background(), InstallRequest{Root: root, DeleteArchive: true})
	require.NoError(t, res.Err)
	assert.Empty(t, res.KeptArchive)
	assert.NoDirExists(t, filepath.Join(root, "archives"))
}

func TestOrchestrator_Install_PinnedVersion(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.1.0", zipArchive(t, map[string]string{"tool.txt": "old"}))
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "new"}))

	o := newTestOrchestrator(t, testConfig(t, remote))
	root := t.TempDir()

	res := o.Install(context.Background(), InstallRequest{Root: root, Version: "1.1.0", DeleteArchive: true})
	require.NoError(t, res.Err)
	assert.Equal(t, "1.1.0", res.ComponentVersion)

	content, err := os.ReadFile(filepath.Join(root, "toolkit", "tool.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(content))
}

func TestOrchestrator_Install_WithServer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake server executable is a shell script")
	}

	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))

	o := newTestOrchestrator(t, testConfig(t, remote))
	root := t.TempDir()

	res := o.Install(context.Background(), InstallRequest{Root: root, CreateServer: true, DeleteArchive: true})
	require.NoError(t, res.Err)
	require.True(t, res.Succeeded())

	serverDir := filepath.Join(root, "server")
	cfgContent, err := os.ReadFile(filepath.Join(serverDir, "server.cfg"))
	require.NoError(t, err)
	assert.Contains(t, string(cfgContent), "port=7777")

	info, err := os.Stat(filepath.Join(serverDir, "server"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "server executable must be executable")

	script, err := os.ReadFile(filepath.Join(serverDir, "start.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(script), "server")

	assert.DirExists(t, filepath.Join(serverDir, "resources", "client"))
	assert.NoDirExists(t, filepath.Join(serverDir, ".first-run"))

	m, err := layout.ReadManifest(root)
	require.NoError(t, err)
	require.NotNil(t, m.Server)
	assert.Equal(t, filepath.Join("server", "server.cfg"), m.Server.ConfigFile)
}

func TestOrchestrator_Install_WithServer_KeepsEditedConfig(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake server executable is a shell script")
	}

	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))

	o := newTestOrchestrator(t, testConfig(t, remote))
	root := t.TempDir()
	req := InstallRequest{Root: root, CreateServer: true, DeleteArchive: true}

	res := o.Install(context.Background(), req)
	require.NoError(t, res.Err)

	cfgPath := filepath.Join(root, "server", "server.cfg")
	require.NoError(t, os.WriteFile(cfgPath, []byte("port=9999 # edited\n"), 0o644))

	res = o.Install(context.Background(), req)
	require.NoError(t, res.Err)
	require.True(t, res.Succeeded())

	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "port=9999 # edited\n", string(content))
	assert.NoDirExists(t, filepath.Join(root, "server", ".first-run"))
}

func TestOrchestrator_Install_ServerExecutableMissing(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))
	remote.mu.Lock()
	remote.serverBin = nil
	remote.mu.Unlock()

	progress := &progressLog{}
	o := newTestOrchestrator(t, testConfig(t, remote), WithObserver(progress.observe))
	root := t.TempDir()

	res := o.Install(context.Background(), InstallRequest{Root: root, CreateServer: true})
	require.Error(t, res.Err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, notify.PhaseFailed, res.Phase)
	assert.Equal(t, software.KindNetwork, res.Kind)

	// what was already placed stays, but the install is not recorded
	assert.FileExists(t, filepath.Join(root, "toolkit", "tool.txt"))
	rs, err := state.ReadReleaseState(root)
	require.NoError(t, err)
	assert.Nil(t, rs)

	updates := progress.all()
	requireMonotonic(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, notify.PhaseFailed, last.Phase)
	assert.Equal(t, notify.SeverityError, last.Severity)
	assert.Equal(t, software.KindNetwork, last.Kind)
	assert.Less(t, last.Percent, 100)
}

func TestOrchestrator_Install_ChecksumMismatch(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))
	remote.mu.Lock()
	remote.componentSHA = sha256Hex([]byte("something else"))
	remote.mu.Unlock()

	o := newTestOrchestrator(t, testConfig(t, remote))
	root := t.TempDir()

	res := o.Install(context.Background(), InstallRequest{Root: root})
	require.Error(t, res.Err)
	assert.Equal(t, software.KindCorruptArchive, res.Kind)
	assert.True(t, errorx.IsOfType(res.Err, software.ChecksumError))
	assert.NoFileExists(t, filepath.Join(root, "toolkit", "tool.txt"))
}

func TestOrchestrator_Install_ChecksumMatch(t *testing.T) {
	remote := newFakeRemote(t)
	archive := zipArchive(t, map[string]string{"tool.txt": "tool"})
	remote.publishComponent("1.2.0", archive)
	remote.mu.Lock()
	remote.componentSHA = sha256Hex(archive)
	remote.mu.Unlock()

	o := newTestOrchestrator(t, testConfig(t, remote))
	res := o.Install(context.Background(), InstallRequest{Root: t.TempDir()})
	require.NoError(t, res.Err)
}

func TestOrchestrator_Install_PathTraversal(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"../../evil.txt": "evil"}))

	o := newTestOrchestrator(t, testConfig(t, remote))
	parent := t.TempDir()
	root := filepath.Join(parent, "kit")

	res := o.Install(context.Background(), InstallRequest{Root: root})
	require.Error(t, res.Err)
	assert.Equal(t, software.KindCorruptArchive, res.Kind)
	assert.NoFileExists(t, filepath.Join(parent, "evil.txt"))
}

func TestOrchestrator_Install_InvalidRequest(t *testing.T) {
	remote := newFakeRemote(t)
	o := newTestOrchestrator(t, testConfig(t, remote))

	_, err := o.StartInstall(context.Background(), InstallRequest{Root: "relative/path"})
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalArgument))

	_, err = o.StartInstall(context.Background(), InstallRequest{Root: t.TempDir(), Version: "../1.0"})
	require.Error(t, err)

	res := o.Install(context.Background(), InstallRequest{Root: ""})
	assert.Equal(t, notify.PhaseFailed, res.Phase)
	assert.Equal(t, software.KindInternal, res.Kind)
}

func TestOrchestrator_Install_LatestUnavailable(t *testing.T) {
	remote := newFakeRemote(t)

	o := newTestOrchestrator(t, testConfig(t, remote))
	res := o.Install(context.Background(), InstallRequest{Root: t.TempDir()})
	require.Error(t, res.Err)
	assert.Equal(t, software.KindNetwork, res.Kind)
}

func TestOrchestrator_BusyRoot(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))

	started := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	observer := func(p notify.Progress) {
		once.Do(func() {
			close(started)
			<-unblock
		})
	}

	o := newTestOrchestrator(t, testConfig(t, remote), WithObserver(observer))
	root := t.TempDir()

	first, err := o.StartInstall(context.Background(), InstallRequest{Root: root})
	require.NoError(t, err)
	<-started

	_, err = o.StartInstall(context.Background(), InstallRequest{Root: root})
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, WorkflowBusyError))

	_, err = o.StartUpdate(context.Background(), root)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, WorkflowBusyError))

	close(unblock)
	res := <-first
	require.NoError(t, res.Err)

	// the root is free again once the run finished
	res = o.Install(context.Background(), InstallRequest{Root: root})
	require.NoError(t, res.Err)
}

func TestOrchestrator_BusyRoot_OtherProcess(t *testing.T) {
	remote := newFakeRemote(t)
	o := newTestOrchestrator(t, testConfig(t, remote))
	root := t.TempDir()

	held, err := plock.NewLock(root, LockName)
	require.NoError(t, err)
	require.NoError(t, held.TryAcquire())
	defer func() { _ = held.Release() }()

	_, err = o.StartInstall(context.Background(), InstallRequest{Root: root})
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, WorkflowBusyError))
}

func TestOrchestrator_Closed(t *testing.T) {
	remote := newFakeRemote(t)
	o := NewOrchestrator(testConfig(t, remote))
	o.Close()
	o.Close()

	_, err := o.StartInstall(context.Background(), InstallRequest{Root: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ClosedError))
}

func installed(t *testing.T, o *Orchestrator, root string) {
	t.Helper()
	res := o.Install(context.Background(), InstallRequest{Root: root, DeleteArchive: true})
	require.NoError(t, res.Err)
}

func TestOrchestrator_Update_NewerComponent(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "v1.2.0"}))
	remote.publishInstaller("1.0.0", zipArchive(t, map[string]string{"kitinstaller": "bin"}))

	progress := &progressLog{}
	cfg := testConfig(t, remote)
	o := newTestOrchestrator(t, cfg, WithObserver(progress.observe))
	root := t.TempDir()
	installed(t, o, root)

	remote.publishComponent("1.3.0", zipArchive(t, map[string]string{"tool.txt": "v1.3.0"}))

	res := o.Update(context.Background(), root)
	require.NoError(t, res.Err)
	require.True(t, res.Succeeded())
	assert.True(t, res.Component.UpdateAvailable)
	assert.False(t, res.Installer.UpdateAvailable)
	assert.Equal(t, "1.3.0", res.ComponentVersion)
	assert.Empty(t, res.StagedInstaller)

	content, err := os.ReadFile(filepath.Join(root, "toolkit", "tool.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1.3.0", string(content))

	rs, err := state.ReadReleaseState(root)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", rs.ComponentVersion)
	assert.Equal(t, "1.0.0", rs.InstallerVersion)

	m, err := layout.ReadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", m.ComponentVersion)
}

func TestOrchestrator_Update_UpToDate(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))
	remote.publishInstaller("1.0.0", zipArchive(t, map[string]string{"kitinstaller": "bin"}))

	o := newTestOrchestrator(t, testConfig(t, remote))
	root := t.TempDir()
	installed(t, o, root)

	res := o.Update(context.Background(), "")
	require.NoError(t, res.Err)
	assert.Equal(t, root, res.Root)
	assert.False(t, res.Component.UpdateAvailable)
	assert.False(t, res.Installer.UpdateAvailable)
	require.Len(t, res.Reports, 1)

	resolved := findStepReport(res.Reports, steps.ResolveLatestVersionsStepId)
	require.NotNil(t, resolved)
	assert.Equal(t, "false", resolved.Metadata[steps.MetaUpdate])
}

// findStepReport searches the report trees for the report of step id.
func findStepReport(reports []*automa.Report, id string) *automa.Report {
	for _, r := range reports {
		if r == nil {
			continue
		}
		if r.Id == id {
			return r
		}
		if found := findStepReport(r.StepReports, id); found != nil {
			return found
		}
	}
	return nil
}

func TestOrchestrator_Update_StagesInstaller(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))
	remote.publishInstaller("1.1.0", zipArchive(t, map[string]string{"kitinstaller": "new"}))

	cfg := testConfig(t, remote)
	o := newTestOrchestrator(t, cfg)
	root := t.TempDir()
	installed(t, o, root)

	res := o.Update(context.Background(), root)
	require.NoError(t, res.Err)
	assert.False(t, res.Component.UpdateAvailable)
	assert.True(t, res.Installer.UpdateAvailable)
	assert.Equal(t, filepath.Join(cfg.Install.StagingDir, "kitinstaller-1.1.0.zip"), res.StagedInstaller)
	assert.FileExists(t, res.StagedInstaller)

	rs, err := state.ReadReleaseState(root)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", rs.InstallerVersion)
}

func TestOrchestrator_Update_ComponentFailureStillStagesInstaller(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "v1.2.0"}))
	remote.publishInstaller("1.1.0", zipArchive(t, map[string]string{"kitinstaller": "new"}))

	progress := &progressLog{}
	o := newTestOrchestrator(t, testConfig(t, remote), WithObserver(progress.observe))
	root := t.TempDir()
	installed(t, o, root)

	// advertised but never published
	remote.mu.Lock()
	remote.componentTag = "1.3.0"
	remote.mu.Unlock()

	res := o.Update(context.Background(), root)
	require.Error(t, res.Err)
	assert.Equal(t, software.KindNetwork, res.Kind)
	assert.NotEmpty(t, res.StagedInstaller)
	assert.FileExists(t, res.StagedInstaller)

	content, err := os.ReadFile(filepath.Join(root, "toolkit", "tool.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", string(content))

	rs, err := state.ReadReleaseState(root)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", rs.ComponentVersion)

	requireMonotonic(t, progress.all())
}

func TestOrchestrator_Update_NothingInstalled(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.2.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))

	progress := &progressLog{}
	o := newTestOrchestrator(t, testConfig(t, remote), WithObserver(progress.observe))
	root := filepath.Join(t.TempDir(), "missing")

	res := o.Update(context.Background(), root)
	require.NoError(t, res.Err)
	assert.True(t, res.Succeeded())
	assert.NoDirExists(t, root)

	read := findStepReport(res.Reports, steps.ReadReleaseStateStepId)
	require.NotNil(t, read)
	assert.Equal(t, "true", read.Metadata[steps.SkippedByThisStep])

	warned := false
	for _, u := range progress.all() {
		if u.Severity == notify.SeverityWarning {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestOrchestrator_CheckForUpdates_CachesComponent(t *testing.T) {
	remote := newFakeRemote(t)
	remote.publishComponent("1.4.0", zipArchive(t, map[string]string{"tool.txt": "tool"}))

	ctrl := gomock.NewController(t)
	resolver := release.NewMockResolver(ctrl)
	resolver.EXPECT().Latest(gomock.Any(), release.ComponentToolkit).
		Return(release.Release{Tag: "1.4.0"}, true).Times(1)
	resolver.EXPECT().Latest(gomock.Any(), release.ComponentInstaller).
		Return(release.Release{}, false).Times(1)

	o := newTestOrchestrator(t, testConfig(t, remote), WithResolver(resolver))
	root := t.TempDir()

	check, err := o.CheckForUpdates(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, root, check.Root)
	assert.Equal(t, "1.4.0", check.Component.LatestRemote)
	assert.Empty(t, check.Component.CurrentLocal)
	assert.False(t, check.Component.UpdateAvailable, "nothing installed yet")
	assert.False(t, check.Installer.UpdateAvailable)

	// the install reuses the checked version without resolving it again
	res := o.Install(context.Background(), InstallRequest{Root: root, DeleteArchive: true})
	require.NoError(t, res.Err)
	assert.Equal(t, "1.4.0", res.ComponentVersion)
}
