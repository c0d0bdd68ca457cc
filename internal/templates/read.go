// SPDX-License-Identifier: Apache-2.0

package templates

import (
	"path"
	"strings"
	"text/template"

	"github.com/joomcode/errorx"
	"golang.org/x/text/encoding/unicode"
)

// funcs are available to every embedded template.
var funcs = template.FuncMap{
	"shquote": shellQuote,
	"oneline": oneLine,
}

// shellQuote quotes s for a POSIX shell so that no expansion happens inside it.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// oneLine collapses s to a single line, for values rendered into script comments.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Read returns the raw bytes of an embedded template.
func Read(name string) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errorx.IllegalArgument.New("template name cannot be empty")
	}

	data, err := Files.ReadFile(name)
	if err != nil {
		return nil, errorx.DataUnavailable.Wrap(err, "template %s is not bundled with the installer", name)
	}

	return data, nil
}

// ReadAsString returns an embedded template as text. Templates must be UTF-8.
func ReadAsString(name string) (string, error) {
	data, err := Read(name)
	if err != nil {
		return "", err
	}

	text, err := unicode.UTF8.NewDecoder().Bytes(data)
	if err != nil {
		return "", errorx.IllegalFormat.Wrap(err, "template %s is not valid UTF-8", name)
	}

	return string(text), nil
}

// Render executes the embedded template name with data. A field missing from data is an error
// rather than an empty string, so a script is never written with a blank executable name.
func Render(name string, data any) (string, error) {
	text, err := ReadAsString(name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(path.Base(name)).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", errorx.IllegalFormat.Wrap(err, "template %s cannot be parsed", name)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", errorx.IllegalState.Wrap(err, "template %s cannot be rendered", name)
	}

	return sb.String(), nil
}
