package steps

// Report metadata keys.
const (
	CreatedByThisStep    = "created"
	DownloadedByThisStep = "downloaded"
	ExtractedByThisStep  = "extracted"
	InstalledByThisStep  = "installed"
	CleanedUpByThisStep  = "cleanedUp"
	ConfiguredByThisStep = "configured"
	SkippedByThisStep    = "skipped"

	MetaVersion  = "version"
	MetaPath     = "path"
	MetaBytes    = "bytes"
	MetaFiles    = "files"
	MetaUpdate   = "updateAvailable"
	MetaArchive  = "archive"
	MetaPrevious = "previousVersion"
)

// Step ids of the install workflow.
const (
	CreateInstallDirsStepId       = "create-install-dirs"
	ResolveComponentVersionStepId = "resolve-component-version"
	DownloadComponentStepId       = "download-component"
	ExtractComponentStepId        = "extract-component"
	DisposeArchiveStepId          = "dispose-archive"
	CreateServerTreeStepId        = "create-server-tree"
	FetchServerExecutableStepId   = "fetch-server-executable"
	BootstrapServerStepId         = "bootstrap-server"
	WriteLaunchScriptStepId       = "write-launch-script"
	RelocateServerConfigStepId    = "relocate-server-config"
	VerifyLayoutStepId            = "verify-layout"
	PersistInstallStepId          = "persist-install"
)

// Step ids of the update workflow.
const (
	ReadReleaseStateStepId      = "read-release-state"
	ResolveLatestVersionsStepId = "resolve-latest-versions"
	StageInstallerStepId        = "stage-installer"
	PersistComponentStepId      = "persist-component-update"
)
