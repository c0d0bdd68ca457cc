// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/serverkit/kitinstaller/pkg/sanity"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "KITINSTALLER"

	defaultReleaseHost = "https://releases.serverkit.io"
)

// Config holds the global configuration for the application.
type Config struct {
	Log     logx.LoggingConfig `yaml:"log" json:"log"`
	Remote  RemoteConfig       `yaml:"remote" json:"remote"`
	Install InstallConfig      `yaml:"install" json:"install"`
	Server  ServerConfig       `yaml:"server" json:"server"`
}

// RemoteConfig represents the `remote` configuration block.
type RemoteConfig struct {
	ComponentBaseURL string        `yaml:"componentBaseURL" json:"componentBaseURL"`
	InstallerBaseURL string        `yaml:"installerBaseURL" json:"installerBaseURL"`
	ResolveTimeout   time.Duration `yaml:"resolveTimeout" json:"resolveTimeout"`
	DownloadTimeout  time.Duration `yaml:"downloadTimeout" json:"downloadTimeout"`
	Retries          uint64        `yaml:"retries" json:"retries"`
	ChunkSize        int           `yaml:"chunkSize" json:"chunkSize"`
}

// InstallConfig represents the `install` configuration block.
// DefaultPath, StagingDir and ConfigFile are absolute; the others are relative to the install root.
type InstallConfig struct {
	DefaultPath  string `yaml:"defaultPath" json:"defaultPath"`
	ComponentDir string `yaml:"componentDir" json:"componentDir"`
	ArchiveDir   string `yaml:"archiveDir" json:"archiveDir"`
	StagingDir   string `yaml:"stagingDir" json:"stagingDir"`
	ConfigFile   string `yaml:"configFile" json:"configFile"`
}

// ServerConfig represents the `server` configuration block used when a server instance is provisioned.
type ServerConfig struct {
	Dir            string        `yaml:"dir" json:"dir"`
	ResourceDir    string        `yaml:"resourceDir" json:"resourceDir"`
	ExecutableURL  string        `yaml:"executableURL" json:"executableURL"`
	ExecutableName string        `yaml:"executableName" json:"executableName"`
	ConfigFile     string        `yaml:"configFile" json:"configFile"`
	GraceDuration  time.Duration `yaml:"graceDuration" json:"graceDuration"`
	LaunchScript   string        `yaml:"launchScript" json:"launchScript"`
}

// envKeys are the keys that can be overridden from the environment without a config file,
// e.g. KITINSTALLER_REMOTE_COMPONENTBASEURL.
var envKeys = []string{
	"log.level",
	"remote.componentBaseURL",
	"remote.installerBaseURL",
	"remote.resolveTimeout",
	"remote.downloadTimeout",
	"remote.retries",
	"remote.chunkSize",
	"install.defaultPath",
	"install.componentDir",
	"install.archiveDir",
	"install.stagingDir",
	"install.configFile",
	"server.dir",
	"server.resourceDir",
	"server.executableURL",
	"server.executableName",
	"server.configFile",
	"server.graceDuration",
	"server.launchScript",
}

// Validate validates all configuration fields to ensure they are safe and usable.
func (c Config) Validate() error {
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	if err := c.Install.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	return nil
}

func (c RemoteConfig) Validate() error {
	if err := sanity.ValidateURL(c.ComponentBaseURL); err != nil {
		return errorx.IllegalArgument.Wrap(err, "invalid remote componentBaseURL")
	}
	if err := sanity.ValidateURL(c.InstallerBaseURL); err != nil {
		return errorx.IllegalArgument.Wrap(err, "invalid remote installerBaseURL")
	}
	if c.ResolveTimeout <= 0 {
		return errorx.IllegalArgument.New("remote resolveTimeout must be positive: %s", c.ResolveTimeout)
	}
	if c.DownloadTimeout <= 0 {
		return errorx.IllegalArgument.New("remote downloadTimeout must be positive: %s", c.DownloadTimeout)
	}
	if c.ChunkSize <= 0 {
		return errorx.IllegalArgument.New("remote chunkSize must be positive: %d", c.ChunkSize)
	}
	return nil
}

func (c InstallConfig) Validate() error {
	for name, p := range map[string]string{
		"defaultPath": c.DefaultPath,
		"stagingDir":  c.StagingDir,
		"configFile":  c.ConfigFile,
	} {
		if _, err := sanity.ValidateInstallPath(p); err != nil {
			return errorx.IllegalArgument.Wrap(err, "invalid install %s", name)
		}
	}

	for name, p := range map[string]string{
		"componentDir": c.ComponentDir,
		"archiveDir":   c.ArchiveDir,
	} {
		if err := validateRelative(p); err != nil {
			return errorx.IllegalArgument.Wrap(err, "invalid install %s", name)
		}
	}

	return nil
}

func (c ServerConfig) Validate() error {
	if err := sanity.ValidateURL(c.ExecutableURL); err != nil {
		return errorx.IllegalArgument.Wrap(err, "invalid server executableURL")
	}

	for name, p := range map[string]string{
		"dir":            c.Dir,
		"resourceDir":    c.ResourceDir,
		"executableName": c.ExecutableName,
		"configFile":     c.ConfigFile,
		"launchScript":   c.LaunchScript,
	} {
		if err := validateRelative(p); err != nil {
			return errorx.IllegalArgument.Wrap(err, "invalid server %s", name)
		}
	}

	for name, p := range map[string]string{
		"executableName": c.ExecutableName,
		"configFile":     c.ConfigFile,
		"launchScript":   c.LaunchScript,
	} {
		if filepath.Base(p) != p {
			return errorx.IllegalArgument.New("server %s must be a file name: %s", name, p)
		}
	}

	if c.GraceDuration < 0 {
		return errorx.IllegalArgument.New("server graceDuration cannot be negative: %s", c.GraceDuration)
	}

	return nil
}

// validateRelative requires a non-empty path that stays inside whatever directory it is joined to.
func validateRelative(p string) error {
	if p == "" {
		return errorx.IllegalArgument.New("path cannot be empty")
	}
	if !filepath.IsLocal(p) {
		return errorx.IllegalArgument.New("path must be relative and cannot leave its parent: %s", p)
	}
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	exeDir := executableDir()

	executableName := "server"
	launchScript := "start.sh"
	if runtime.GOOS == "windows" {
		executableName = "server.exe"
		launchScript = "start.bat"
	}

	return Config{
		Log: logx.LoggingConfig{
			Level:          "Warn",
			ConsoleLogging: true,
			FileLogging:    false,
		},
		Remote: RemoteConfig{
			ComponentBaseURL: defaultReleaseHost + "/toolkit",
			InstallerBaseURL: defaultReleaseHost + "/kitinstaller",
			ResolveTimeout:   5 * time.Second,
			DownloadTimeout:  30 * time.Minute,
			Retries:          2,
			ChunkSize:        32 * 1024,
		},
		Install: InstallConfig{
			DefaultPath:  filepath.Join(homeDir(), "ServerKit"),
			ComponentDir: "toolkit",
			ArchiveDir:   "archives",
			StagingDir:   filepath.Join(exeDir, "staged"),
			ConfigFile:   filepath.Join(exeDir, "kitinstaller.state"),
		},
		Server: ServerConfig{
			Dir:            "server",
			ResourceDir:    filepath.Join("resources", "client"),
			ExecutableURL:  defaultReleaseHost + "/server/" + runtime.GOOS + "-" + runtime.GOARCH + "/" + executableName,
			ExecutableName: executableName,
			ConfigFile:     "server.cfg",
			GraceDuration:  5 * time.Second,
			LaunchScript:   launchScript,
		},
	}
}

var globalConfig = Default()

// Initialize loads the configuration from the specified file on top of the defaults.
//
// Parameters:
//   - path: The path to the configuration file. May be empty, in which case only environment
//     overrides are applied.
//
// Returns:
//   - An error if the configuration cannot be loaded.
func Initialize(path string) error {
	cfg := Default()

	viper.Reset()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range envKeys {
		if err := viper.BindEnv(key); err != nil {
			return errorx.InternalError.Wrap(err, "failed to bind environment variable for %s", key)
		}
	}

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return newNotFoundError(err, path)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return newMalformedError(err, path)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	globalConfig = cfg
	return nil
}

// Get returns the loaded configuration.
func Get() Config {
	return globalConfig
}

func Set(c *Config) error {
	if c == nil {
		return errorx.IllegalArgument.New("config cannot be nil")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	globalConfig = *c
	return nil
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return executableDir()
}
