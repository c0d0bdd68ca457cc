// SPDX-License-Identifier: Apache-2.0

package doctor

import "strings"

// ANSI escape codes used by the diagnosis report.
const (
	Red    = "\033[31m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	White  = "\033[37m"
	Gray   = "\033[90m"
	Reset  = "\033[0m"
	Bold   = "\033[1m"
)

const bannerWidth = 99

// banner centers title in a line of stars, e.g. "***** Resolution *****".
func banner(color, title string) string {
	if title == "" {
		return Bold + color + strings.Repeat("*", bannerWidth) + Reset
	}

	title = " " + title + " "
	left := (bannerWidth - len(title)) / 2
	right := bannerWidth - len(title) - left
	return Bold + color + strings.Repeat("*", left) + title + strings.Repeat("*", right) + Reset
}

// field renders one "* Label: value" line of a report section. The gutter takes the color of the
// section, the label takes labelColor.
func field(gutter, labelColor, label, value string) string {
	return gutter + "*" + Reset + "\t" + labelColor + label + ":" + Reset + " " + value
}

// line renders a free text line of a report section.
func line(gutter, text string) string {
	if text == "" {
		return gutter + "*" + Reset
	}
	return gutter + "*" + Reset + "\t" + text
}
