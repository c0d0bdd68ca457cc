// SPDX-License-Identifier: Apache-2.0

package software

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/automa-saga/logx"
	"github.com/cenkalti/backoff/v4"
	"github.com/serverkit/kitinstaller/pkg/sanity"
)

const (
	// DefaultChunkSize is the size of the buffer used to stream a response body to disk.
	DefaultChunkSize = 32 * 1024
	// DefaultDownloadTimeout bounds a single download attempt, including the body transfer.
	DefaultDownloadTimeout = 30 * time.Minute
	userAgent              = "kitinstaller/%s"
)

// ProgressFunc receives the number of bytes written so far and the expected total.
// total is -1 when the server did not announce a Content-Length.
type ProgressFunc func(written, total int64)

// Downloader streams remote archives to local files.
type Downloader struct {
	client    *http.Client
	timeout   time.Duration
	chunkSize int
	retries   uint64
	retryWait time.Duration
	agent     string
}

type DownloaderOption func(*Downloader)

func WithTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) {
		if timeout > 0 {
			d.timeout = timeout
			d.client.Timeout = timeout
		}
	}
}

func WithChunkSize(size int) DownloaderOption {
	return func(d *Downloader) {
		if size > 0 {
			d.chunkSize = size
		}
	}
}

// WithRetries sets how many times a failed transfer is retried. 4xx responses are never retried.
func WithRetries(retries uint64, wait time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.retries = retries
		d.retryWait = wait
	}
}

func WithHTTPClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

func WithUserAgent(version string) DownloaderOption {
	return func(d *Downloader) {
		d.agent = fmt.Sprintf(userAgent, strings.TrimSpace(version))
	}
}

// NewDownloader creates a new Downloader with default settings
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client: &http.Client{
			Timeout: DefaultDownloadTimeout,
		},
		timeout:   DefaultDownloadTimeout,
		chunkSize: DefaultChunkSize,
		retryWait: time.Second,
		agent:     fmt.Sprintf(userAgent, "dev"),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Download streams the resource at rawURL into destination and returns the number of bytes written.
//
// The destination file is created by Download; its parent directory must already exist. When the
// transfer fails for any reason the destination is removed, so callers never observe a partial file.
func (d *Downloader) Download(ctx context.Context, rawURL, destination string, progress ProgressFunc) (int64, error) {
	if err := validateURL(rawURL); err != nil {
		return 0, err
	}

	var written int64
	attempt := 0
	op := func() error {
		attempt++
		n, err := d.downloadOnce(ctx, rawURL, destination, progress)
		if err != nil {
			_ = os.Remove(destination)
			logx.As().Warn().Err(err).
				Str("url", rawURL).
				Int("attempt", attempt).
				Msg("Download attempt failed")
			return err
		}
		written = n
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.retryWait
	b := backoff.WithContext(backoff.WithMaxRetries(policy, d.retries), ctx)

	if err := backoff.Retry(op, b); err != nil {
		_ = os.Remove(destination)
		return 0, err
	}

	logx.As().Debug().
		Str("url", rawURL).
		Str("file_path", destination).
		Int64("bytes", written).
		Msg("Download completed")

	return written, nil
}

func (d *Downloader) downloadOnce(ctx context.Context, rawURL, destination string, progress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, backoff.Permanent(NewInvalidURLError(err, rawURL))
	}
	req.Header.Set("User-Agent", d.agent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, NewNetworkError(err, rawURL, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		nerr := NewNetworkError(nil, rawURL, resp.StatusCode)
		if resp.StatusCode < 500 {
			return 0, backoff.Permanent(nerr)
		}
		return 0, nerr
	}

	out, err := os.Create(destination)
	if err != nil {
		return 0, backoff.Permanent(NewFilesystemError(err, destination))
	}

	w := &progressWriter{w: out, total: resp.ContentLength, report: progress}
	buf := make([]byte, d.chunkSize)
	n, copyErr := io.CopyBuffer(w, resp.Body, buf)
	closeErr := out.Close()

	if copyErr != nil {
		return n, NewNetworkError(copyErr, rawURL, 0)
	}
	if closeErr != nil {
		return n, backoff.Permanent(NewFilesystemError(closeErr, destination))
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, NewNetworkError(fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength), rawURL, 0)
	}

	return n, nil
}

// Checksum verifies the sha256 digest of a file.
func (d *Downloader) Checksum(filePath string, expectedHash string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return NewFilesystemError(err, filePath)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, file, make([]byte, d.chunkSize)); err != nil {
		return NewFilesystemError(err, filePath)
	}

	calculatedHash := fmt.Sprintf("%x", h.Sum(nil))
	if !strings.EqualFold(calculatedHash, strings.TrimSpace(expectedHash)) {
		return NewChecksumError(filePath, expectedHash, calculatedHash)
	}

	return nil
}

func validateURL(rawURL string) error {
	if err := sanity.ValidateURL(rawURL); err != nil {
		return NewInvalidURLError(err, rawURL)
	}
	return nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	report  ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.report != nil {
		p.report(p.written, p.total)
	}
	return n, err
}
