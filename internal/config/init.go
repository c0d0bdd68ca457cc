// SPDX-License-Identifier: Apache-2.0

package config

import "github.com/automa-saga/logx"

// Until Initialize runs, commands log warnings and errors to the console only; no log file is
// created next to the installer before the user's config is known.
func init() {
	_ = logx.Initialize(logx.LoggingConfig{
		Level:          globalConfig.Log.Level,
		ConsoleLogging: true,
	})
}
