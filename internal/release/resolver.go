// SPDX-License-Identifier: Apache-2.0

// Package release resolves the latest published versions of the toolkit component and of the
// installer itself, and decides whether an update is due.
package release

//go:generate mockgen -destination=mock_resolver.go -package=release . Resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/automa-saga/logx"
	"github.com/serverkit/kitinstaller/pkg/sanity"
)

const (
	ComponentToolkit   = "toolkit"
	ComponentInstaller = "kitinstaller"

	DefaultResolveTimeout = 5 * time.Second

	latestPath = "latest"
	// maxLatestBody bounds the metadata response; anything larger is not a version document.
	maxLatestBody = 64 * 1024
)

// Release is the metadata served by GET <base>/latest.
type Release struct {
	Tag string `json:"tag"`
	// TagName is accepted for endpoints that mirror the GitHub releases API.
	TagName string `json:"tag_name,omitempty"`
	SHA256  string `json:"sha256,omitempty"`
}

func (r Release) version() string {
	if r.Tag != "" {
		return strings.TrimSpace(r.Tag)
	}
	return strings.TrimSpace(r.TagName)
}

// Resolver finds the latest available release of a component.
type Resolver interface {
	// Latest returns the latest release of componentId. ok is false when the version could not be
	// determined for any reason; that is never a fatal error.
	Latest(ctx context.Context, componentId string) (rel Release, ok bool)
}

// HTTPResolver queries <base>/latest per component.
type HTTPResolver struct {
	client  *http.Client
	timeout time.Duration
	bases   map[string]string
}

// NewHTTPResolver returns a resolver for the given component base URLs.
func NewHTTPResolver(bases map[string]string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}

	copied := make(map[string]string, len(bases))
	for id, base := range bases {
		copied[id] = base
	}

	return &HTTPResolver{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		bases:   copied,
	}
}

func (r *HTTPResolver) Latest(ctx context.Context, componentId string) (Release, bool) {
	base, found := r.bases[componentId]
	if !found {
		logx.As().Warn().Str("component", componentId).Msg("No release endpoint configured for component")
		return Release{}, false
	}

	endpoint, err := JoinURL(base, latestPath)
	if err != nil {
		logx.As().Warn().Err(err).Str("url", base).Msg("Invalid release endpoint")
		return Release{}, false
	}

	rel, err := r.fetch(ctx, endpoint)
	if err != nil {
		logx.As().Warn().
			Err(err).
			Str("component", componentId).
			Str("url", endpoint).
			Msg("Latest version unavailable")
		return Release{}, false
	}

	logx.As().Debug().
		Str("component", componentId).
		Str("version", rel.version()).
		Msg("Resolved latest version")

	return Release{Tag: rel.version(), SHA256: strings.ToLower(strings.TrimSpace(rel.SHA256))}, true
}

func (r *HTTPResolver) fetch(ctx context.Context, endpoint string) (Release, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Release{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Release{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("invalid status code: %d", resp.StatusCode)
	}

	if resp.ContentLength > maxLatestBody {
		return Release{}, fmt.Errorf("too large response: %d", resp.ContentLength)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxLatestBody+1))
	if err != nil {
		return Release{}, err
	}
	if len(content) > maxLatestBody {
		return Release{}, fmt.Errorf("too large response: more than %d bytes", maxLatestBody)
	}

	var rel Release
	if err := json.Unmarshal(content, &rel); err != nil {
		return Release{}, err
	}

	if err := sanity.ValidateVersionTag(rel.version()); err != nil {
		return Release{}, err
	}

	return rel, nil
}

// ArchiveURL returns <base>/archive/<tag>.zip.
func ArchiveURL(base, tag string) (string, error) {
	if err := sanity.ValidateVersionTag(tag); err != nil {
		return "", err
	}
	return JoinURL(base, "archive", tag+".zip")
}

// JoinURL appends path elements to base, escaping each element.
func JoinURL(base string, elem ...string) (string, error) {
	if err := sanity.ValidateURL(base); err != nil {
		return "", err
	}

	escaped := make([]string, 0, len(elem))
	for _, e := range elem {
		escaped = append(escaped, url.PathEscape(e))
	}

	return url.JoinPath(base, escaped...)
}
