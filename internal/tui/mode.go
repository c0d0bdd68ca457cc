// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"io"
	"os"
	"runtime"
	"strings"
)

// OutputMode describes how workflow progress is rendered.
type OutputMode int

const (
	// ModeTUI renders an interactive progress bar.
	ModeTUI OutputMode = iota
	// ModePlain writes one line per progress update.
	ModePlain
)

// DetectMode picks ModeTUI only when out is a terminal that can render it.
func DetectMode(out io.Writer, noProgress bool) OutputMode {
	if noProgress {
		return ModePlain
	}
	file, ok := out.(*os.File)
	if !ok {
		return ModePlain
	}
	info, err := file.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return ModePlain
	}
	if runtime.GOOS != "windows" {
		term := os.Getenv("TERM")
		if term == "" || strings.EqualFold(term, "dumb") {
			return ModePlain
		}
	}
	return ModeTUI
}
