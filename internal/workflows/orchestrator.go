// SPDX-License-Identifier: Apache-2.0

package workflows

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/google/uuid"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/internal/config"
	"github.com/serverkit/kitinstaller/internal/layout"
	"github.com/serverkit/kitinstaller/internal/release"
	"github.com/serverkit/kitinstaller/internal/state"
	"github.com/serverkit/kitinstaller/internal/version"
	"github.com/serverkit/kitinstaller/internal/workflows/notify"
	"github.com/serverkit/kitinstaller/internal/workflows/steps"
	"github.com/serverkit/kitinstaller/pkg/bootstrap"
	"github.com/serverkit/kitinstaller/pkg/plock"
	"github.com/serverkit/kitinstaller/pkg/sanity"
	"github.com/serverkit/kitinstaller/pkg/software"
)

const (
	// LockName names the lock file taken in an install root while a workflow runs there.
	LockName = "kitinstaller"

	queueSize     = 8
	retryInterval = time.Second
)

// Result is the outcome of one workflow run.
type Result struct {
	RunID    string       `json:"runId" yaml:"runId"`
	Workflow string       `json:"workflow" yaml:"workflow"`
	Root     string       `json:"root" yaml:"root"`
	Phase    notify.Phase `json:"phase" yaml:"phase"`
	Kind     string       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message  string       `json:"message,omitempty" yaml:"message,omitempty"`
	Err      error        `json:"-" yaml:"-"`

	ComponentVersion string              `json:"componentVersion,omitempty" yaml:"componentVersion,omitempty"`
	Component        release.VersionPair `json:"component" yaml:"component"`
	Installer        release.VersionPair `json:"installer" yaml:"installer"`
	StagedInstaller  string              `json:"stagedInstaller,omitempty" yaml:"stagedInstaller,omitempty"`
	KeptArchive      string              `json:"keptArchive,omitempty" yaml:"keptArchive,omitempty"`

	Reports []*automa.Report `json:"-" yaml:"-"`
}

func (r Result) Succeeded() bool {
	return r.Phase == notify.PhaseSucceeded
}

// UpdateCheck is the outcome of a background version check.
type UpdateCheck struct {
	Root      string              `json:"root" yaml:"root"`
	Component release.VersionPair `json:"component" yaml:"component"`
	Installer release.VersionPair `json:"installer" yaml:"installer"`
}

// Orchestrator runs install and update workflows on a single worker goroutine.
//
// Only one workflow may run against an install root at a time, within this process and across
// processes: a request against a busy root is rejected with a WorkflowBusyError. Requests for other
// roots are queued and run one after another.
type Orchestrator struct {
	env      steps.Env
	observer notify.Observer

	jobs      chan func()
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu     sync.Mutex
	busy   map[string]*plock.Lock
	cached *release.Release
}

type Option func(*Orchestrator)

// WithObserver registers the observer of every run's progress.
func WithObserver(observer notify.Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

func WithResolver(resolver release.Resolver) Option {
	return func(o *Orchestrator) {
		if resolver != nil {
			o.env.Resolver = resolver
		}
	}
}

func WithDownloader(d *software.Downloader) Option {
	return func(o *Orchestrator) {
		if d != nil {
			o.env.Downloader = d
		}
	}
}

func WithBootstrapRunner(r *bootstrap.Runner) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.env.Bootstrap = r
		}
	}
}

// WithInstallerVersion overrides the version the installer reports for itself.
func WithInstallerVersion(v string) Option {
	return func(o *Orchestrator) {
		o.env.InstallerVersion = v
	}
}

// NewOrchestrator creates an orchestrator for cfg and starts its worker. Close stops it.
func NewOrchestrator(cfg config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		env: steps.Env{
			Config: cfg,
			Resolver: release.NewHTTPResolver(map[string]string{
				release.ComponentToolkit:   cfg.Remote.ComponentBaseURL,
				release.ComponentInstaller: cfg.Remote.InstallerBaseURL,
			}, cfg.Remote.ResolveTimeout),
			Downloader: software.NewDownloader(
				software.WithTimeout(cfg.Remote.DownloadTimeout),
				software.WithChunkSize(cfg.Remote.ChunkSize),
				software.WithRetries(cfg.Remote.Retries, retryInterval),
				software.WithUserAgent(version.Number()),
			),
			Extractor:        software.NewExtractor(),
			Bootstrap:        bootstrap.NewRunner(bootstrap.WithGracePeriod(cfg.Server.GraceDuration)),
			ConfigStore:      state.NewConfigStore(cfg.Install.ConfigFile, cfg.Install.ComponentDir),
			InstallerVersion: version.Number(),
		},
		jobs: make(chan func(), queueSize),
		busy: map[string]*plock.Lock{},
	}

	for _, opt := range opts {
		opt(o)
	}

	o.wg.Add(1)
	go o.work()

	return o
}

func (o *Orchestrator) work() {
	defer o.wg.Done()
	for job := range o.jobs {
		job()
	}
}

// InstallationPath returns the last used install root, or the configured default.
func (o *Orchestrator) InstallationPath() string {
	return o.env.ConfigStore.LoadInstallationPath(o.env.Config.Install.DefaultPath)
}

// StartInstall queues an install and returns a channel that receives its result once.
func (o *Orchestrator) StartInstall(ctx context.Context, req InstallRequest) (<-chan Result, error) {
	root, err := sanity.ValidateInstallPath(req.Root)
	if err != nil {
		return nil, errorx.IllegalArgument.Wrap(err, "invalid install path")
	}
	req.Root = root

	if req.Version != "" {
		if err := sanity.ValidateVersionTag(req.Version); err != nil {
			return nil, errorx.IllegalArgument.Wrap(err, "invalid component version")
		}
	}

	return o.start(ctx, root, true, func(ctx context.Context) Result {
		return o.runInstall(ctx, req)
	})
}

// StartUpdate queues an update of root and returns a channel that receives its result once.
// An empty root updates the last used install root.
func (o *Orchestrator) StartUpdate(ctx context.Context, root string) (<-chan Result, error) {
	if root == "" {
		root = o.InstallationPath()
	}

	root, err := sanity.ValidateInstallPath(root)
	if err != nil {
		return nil, errorx.IllegalArgument.Wrap(err, "invalid install path")
	}

	return o.start(ctx, root, false, func(ctx context.Context) Result {
		return o.runUpdate(ctx, root)
	})
}

// Install runs an install and waits for its result.
func (o *Orchestrator) Install(ctx context.Context, req InstallRequest) Result {
	ch, err := o.StartInstall(ctx, req)
	if err != nil {
		return rejected(InstallWorkflowId, req.Root, err)
	}
	return <-ch
}

// Update runs an update and waits for its result.
func (o *Orchestrator) Update(ctx context.Context, root string) Result {
	ch, err := o.StartUpdate(ctx, root)
	if err != nil {
		return rejected(UpdateWorkflowId, root, err)
	}
	return <-ch
}

// CheckForUpdates resolves the version pairs of root without changing anything. The latest component
// release is remembered and installed by the next install that does not pin a version.
func (o *Orchestrator) CheckForUpdates(ctx context.Context, root string) (UpdateCheck, error) {
	if root == "" {
		root = o.InstallationPath()
	}

	root, err := sanity.ValidateInstallPath(root)
	if err != nil {
		return UpdateCheck{}, errorx.IllegalArgument.Wrap(err, "invalid install path")
	}

	current := ""
	if rs := state.LoadReleaseState(root); rs != nil {
		current = rs.ComponentVersion
	}

	check := UpdateCheck{Root: root}

	componentRel, ok := o.env.Resolver.Latest(ctx, release.ComponentToolkit)
	if ok {
		o.mu.Lock()
		o.cached = &componentRel
		o.mu.Unlock()
	}
	check.Component = release.NewVersionPair(componentRel.Tag, current)

	installerRel, _ := o.env.Resolver.Latest(ctx, release.ComponentInstaller)
	check.Installer = release.NewVersionPair(installerRel.Tag, o.env.InstallerVersion)

	logx.As().Debug().
		Str("install_root", root).
		Any("component", check.Component).
		Any("installer", check.Installer).
		Msg("Checked for updates")

	return check, nil
}

// Close stops accepting requests, waits for queued workflows to finish and stops the worker.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.closeMu.Lock()
		o.closed = true
		close(o.jobs)
		o.closeMu.Unlock()
	})
	o.wg.Wait()
}

func (o *Orchestrator) start(ctx context.Context, root string, create bool, fn func(context.Context) Result) (<-chan Result, error) {
	o.closeMu.RLock()
	defer o.closeMu.RUnlock()

	if o.closed {
		return nil, ClosedError.New("orchestrator is closed")
	}

	if err := o.acquire(root, create); err != nil {
		return nil, err
	}

	// cancellation mid-workflow is not supported
	ctx = context.WithoutCancel(ctx)

	out := make(chan Result, 1)
	o.jobs <- func() {
		defer o.release(root)
		out <- fn(ctx)
		close(out)
	}

	return out, nil
}

// acquire marks root busy in this process and takes its lock file. The root is created first when
// create is set; a root that does not exist is only guarded within this process.
func (o *Orchestrator) acquire(root string, create bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, found := o.busy[root]; found {
		return NewWorkflowBusyError(root)
	}

	if create {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return software.NewFilesystemError(err, root)
		}
	}

	var lock *plock.Lock
	if info, err := os.Stat(root); err == nil && info.IsDir() {
		l, err := plock.NewLock(root, LockName)
		if err != nil {
			return err
		}
		if err := l.TryAcquire(); err != nil {
			if errorx.IsOfType(err, plock.LockedError) {
				return NewWorkflowBusyError(root).WithUnderlyingErrors(err)
			}
			return err
		}
		lock = l
	}

	o.busy[root] = lock
	return nil
}

func (o *Orchestrator) release(root string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if lock := o.busy[root]; lock != nil {
		if err := lock.Release(); err != nil {
			logx.As().Warn().Err(err).Str("install_root", root).Msg("Failed to release install root lock")
		}
	}
	delete(o.busy, root)
}

func (o *Orchestrator) cachedComponent() *release.Release {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cached
}

func (o *Orchestrator) serverConfig(createServer bool) *config.ServerConfig {
	if !createServer {
		return nil
	}
	srv := o.env.Config.Server
	return &srv
}

func (o *Orchestrator) runInstall(ctx context.Context, req InstallRequest) Result {
	runID := uuid.NewString()
	ctx = notify.WithRunID(ctx, runID)
	tracker := notify.NewTracker(ctx, InstallWorkflowId, o.observer)

	l := layout.New(req.Root, o.env.Config.Install, o.serverConfig(req.CreateServer))
	run := steps.NewRun(o.env, l, tracker)
	run.DeleteArchive = req.DeleteArchive
	run.CreateServer = req.CreateServer
	run.PinnedVersion = req.Version
	if req.Version == "" {
		run.Cached = o.cachedComponent()
	}
	defer run.Cleanup()

	logx.As().Info().
		Str("run_id", runID).
		Str("install_root", req.Root).
		Bool("create_server", req.CreateServer).
		Bool("delete_archive", req.DeleteArchive).
		Msg("Starting install")

	res := Result{RunID: runID, Workflow: InstallWorkflowId, Root: req.Root}
	o.execute(ctx, run, &res, NewInstallWorkflow(run))

	res.ComponentVersion = run.Component.Tag
	res.KeptArchive = run.KeptArchive
	return o.finish(run, res, "Installed version %s into %s", run.Component.Tag, req.Root)
}

func (o *Orchestrator) runUpdate(ctx context.Context, root string) Result {
	runID := uuid.NewString()
	ctx = notify.WithRunID(ctx, runID)
	tracker := notify.NewTracker(ctx, UpdateWorkflowId, o.observer)

	run := steps.NewRun(o.env, layout.New(root, o.env.Config.Install, nil), tracker)
	defer run.Cleanup()

	logx.As().Info().
		Str("run_id", runID).
		Str("install_root", root).
		Msg("Starting update")

	res := Result{RunID: runID, Workflow: UpdateWorkflowId, Root: root}
	if !o.execute(ctx, run, &res, NewUpdatePrepareWorkflow(run)) {
		return o.finish(run, res, "")
	}

	res.Component = run.ComponentPair
	res.Installer = run.InstallerPair
	if run.Prior != nil {
		res.ComponentVersion = run.Prior.ComponentVersion
	}

	if !run.ComponentPair.UpdateAvailable && !run.InstallerPair.UpdateAvailable {
		return o.finish(run, res, "Already up to date")
	}

	fetched := false
	if run.ComponentPair.UpdateAvailable {
		fetched = o.execute(ctx, run, &res, NewFetchComponentWorkflow(run))
	}

	if run.InstallerPair.UpdateAvailable {
		if o.execute(ctx, run, &res, NewStageInstallerWorkflow(run)) {
			res.StagedInstaller = run.StagedPath
		}
	}

	if fetched && o.execute(ctx, run, &res, NewApplyComponentWorkflow(run)) {
		res.ComponentVersion = run.Component.Tag
	}

	return o.finish(run, res, "Update finished")
}

// execute builds and runs one workflow of a run and reports whether it succeeded.
func (o *Orchestrator) execute(ctx context.Context, run *steps.Run, res *Result, b automa.Builder) bool {
	wf, err := b.Build()
	if err != nil {
		run.Fail(errorx.InternalError.Wrap(err, "failed to build workflow"))
		return false
	}

	report := wf.Execute(ctx)
	res.Reports = append(res.Reports, report)

	if report.Status == automa.StatusFailed || report.Error != nil {
		if len(run.Errors()) == 0 {
			// a failure no step recorded, e.g. raised by the workflow engine itself
			var cause error = errorx.InternalError.New("workflow %s failed", wf.Id())
			if report.Error != nil {
				cause = report.Error
			}
			run.Fail(cause)
		}
		return false
	}

	return true
}

// finish closes the run's progress with its outcome and fills the result from it.
func (o *Orchestrator) finish(run *steps.Run, res Result, format string, args ...interface{}) Result {
	if err := run.Err(); err != nil {
		run.Tracker.Fail(err)
		res.Phase = notify.PhaseFailed
		res.Err = err
		res.Kind = software.Kind(err)
		res.Message = err.Error()

		logx.As().Error().
			Err(err).
			Str("run_id", res.RunID).
			Str("install_root", res.Root).
			Str("kind", res.Kind).
			Int("failures", len(run.Errors())).
			Msgf("Workflow %s failed", res.Workflow)
		return res
	}

	run.Tracker.Succeed(format, args...)
	res.Phase = notify.PhaseSucceeded
	res.Message = run.Tracker.Current().Message

	logx.As().Info().
		Str("run_id", res.RunID).
		Str("install_root", res.Root).
		Msgf("Workflow %s succeeded", res.Workflow)
	return res
}

func rejected(workflow, root string, err error) Result {
	return Result{
		Workflow: workflow,
		Root:     root,
		Phase:    notify.PhaseFailed,
		Kind:     software.Kind(err),
		Message:  err.Error(),
		Err:      err,
	}
}
