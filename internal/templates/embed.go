package templates

import (
	"embed"
)

//go:embed files/*
var Files embed.FS

const (
	launchShellTemplate = "files/launch/start.sh.tmpl"
	launchBatchTemplate = "files/launch/start.bat.tmpl"
)

// LaunchScriptData is the data rendered into a server launch script.
type LaunchScriptData struct {
	ServerName       string
	ExecutableName   string
	ConfigFile       string
	ComponentVersion string
	InstallerVersion string
}
