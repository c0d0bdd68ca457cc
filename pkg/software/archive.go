// SPDX-License-Identifier: Apache-2.0

package software

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/automa-saga/logx"
	"github.com/serverkit/kitinstaller/pkg/sanity"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// InstalledPaths lists what an extraction placed under its destination root.
type InstalledPaths struct {
	Root  string
	Dirs  []string
	Files []string
}

// entry is the format independent view of one archive member.
type entry struct {
	name  string
	isDir bool
	mode  fs.FileMode
	open  func() (io.ReadCloser, error)
}

// path is the normalized entry name. Directories always end in "/", tar writers may omit it.
func (e entry) path() string {
	name := normalizeEntryName(e.name)
	if e.isDir && name != "" && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

// Extractor unpacks zip and tar.gz archives into a destination tree.
//
// The archive's synthetic top-level folder (e.g. "toolkit-1.4.0/") is stripped so its contents
// land directly in the destination. Every entry is validated before anything is written: an entry
// that would resolve outside the destination aborts the extraction with a PathTraversalError and
// leaves the destination untouched. Existing files are overwritten, so re-extracting the same
// archive over the same destination yields the same tree.
type Extractor struct {
	chunkSize int
}

func NewExtractor() *Extractor {
	return &Extractor{chunkSize: DefaultChunkSize}
}

// Extract unpacks archivePath into destRoot. destRoot is created if missing.
func (x *Extractor) Extract(archivePath, destRoot string) (*InstalledPaths, error) {
	destRoot, err := filepath.Abs(destRoot)
	if err != nil {
		return nil, NewFilesystemError(err, destRoot)
	}

	if _, err := os.Stat(archivePath); err != nil {
		return nil, NewFilesystemError(err, archivePath)
	}

	if isTarGz(archivePath) {
		return x.extractTarGz(archivePath, destRoot)
	}

	return x.extractZip(archivePath, destRoot)
}

func (x *Extractor) extractZip(archivePath, destRoot string) (*InstalledPaths, error) {
	r, err := zip.OpenReader(archivePath)
	// only reported with GODEBUG=zipinsecurepath=0; otherwise plan catches these names
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = r.Close()
		return nil, NewPathTraversalError(archivePath).WithUnderlyingErrors(err)
	}
	if err != nil {
		return nil, NewCorruptArchiveError(err, archivePath)
	}
	defer r.Close()

	entries := make([]entry, 0, len(r.File))
	for _, f := range r.File {
		f := f
		entries = append(entries, entry{
			name:  f.Name,
			isDir: f.FileInfo().IsDir(),
			mode:  f.Mode(),
			open:  f.Open,
		})
	}

	return x.place(archivePath, destRoot, entries)
}

// extractTarGz reads the archive twice: once to collect and validate entry names, once to copy data.
func (x *Extractor) extractTarGz(archivePath, destRoot string) (*InstalledPaths, error) {
	headers, err := readTarHeaders(archivePath)
	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(headers))
	for _, hdr := range headers {
		if hdr.Typeflag != tar.TypeDir && hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeSymlink {
			continue
		}
		mode := hdr.FileInfo().Mode()
		if hdr.Typeflag == tar.TypeSymlink {
			mode |= fs.ModeSymlink
		}
		entries = append(entries, entry{
			name:  hdr.Name,
			isDir: hdr.Typeflag == tar.TypeDir,
			mode:  mode,
		})
	}

	plan, err := x.plan(archivePath, destRoot, entries)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, NewFilesystemError(err, archivePath)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, NewCorruptArchiveError(err, archivePath)
	}
	defer gz.Close()

	installed := &InstalledPaths{Root: destRoot}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return installed, nil
		}
		if err != nil {
			return installed, NewCorruptArchiveError(err, archivePath)
		}

		target, ok := plan[hdr.Name]
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, defaultDirPerm); err != nil {
				return installed, NewExtractionIOError(err, archivePath, target)
			}
			installed.Dirs = append(installed.Dirs, target)
		case tar.TypeReg:
			if err := x.writeFile(tr, target, hdr.FileInfo().Mode()); err != nil {
				return installed, NewExtractionIOError(err, archivePath, target)
			}
			installed.Files = append(installed.Files, target)
		}
	}
}

func readTarHeaders(archivePath string) ([]*tar.Header, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, NewFilesystemError(err, archivePath)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, NewCorruptArchiveError(err, archivePath)
	}
	defer gz.Close()

	var headers []*tar.Header
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return headers, nil
		}
		if err != nil {
			return nil, NewCorruptArchiveError(err, archivePath)
		}
		headers = append(headers, hdr)
	}
}

// place validates all entries and then writes them in archive order.
func (x *Extractor) place(archivePath, destRoot string, entries []entry) (*InstalledPaths, error) {
	plan, err := x.plan(archivePath, destRoot, entries)
	if err != nil {
		return nil, err
	}

	installed := &InstalledPaths{Root: destRoot}
	for _, e := range entries {
		target, ok := plan[e.name]
		if !ok {
			continue
		}

		if e.isDir {
			if err := os.MkdirAll(target, defaultDirPerm); err != nil {
				return installed, NewExtractionIOError(err, archivePath, target)
			}
			installed.Dirs = append(installed.Dirs, target)
			continue
		}

		rc, err := e.open()
		if err != nil {
			return installed, NewCorruptArchiveError(err, archivePath)
		}
		err = x.writeFile(rc, target, e.mode)
		closeErr := rc.Close()
		if err != nil {
			if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) {
				return installed, NewCorruptArchiveError(err, archivePath)
			}
			return installed, NewExtractionIOError(err, archivePath, target)
		}
		if closeErr != nil {
			return installed, NewCorruptArchiveError(closeErr, archivePath)
		}
		installed.Files = append(installed.Files, target)
	}

	return installed, nil
}

// plan maps archive entry names to their destination paths. Symlinks and the stripped root folder
// itself are left out of the plan.
func (x *Extractor) plan(archivePath, destRoot string, entries []entry) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, NewCorruptArchiveError(errors.New("archive has no entries"), archivePath)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.path())
	}
	prefix := CommonRootPrefix(names)

	plan := make(map[string]string, len(entries))
	for _, e := range entries {
		rel := strings.TrimPrefix(e.path(), prefix)
		if rel == "" || rel == "." {
			continue
		}

		target, err := SecureTarget(destRoot, rel)
		if err != nil {
			return nil, err
		}

		if e.mode&fs.ModeSymlink != 0 {
			logx.As().Warn().
				Str("entry", e.name).
				Str("file_path", archivePath).
				Msg("Skipping symbolic link archive entry")
			continue
		}

		plan[e.name] = target
	}

	return plan, nil
}

func (x *Extractor) writeFile(r io.Reader, target string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), defaultDirPerm); err != nil {
		return err
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = defaultFilePerm
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	if _, err := io.CopyBuffer(out, r, make([]byte, x.chunkSize)); err != nil {
		out.Close()
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	// O_CREATE only applies perm to new files; keep executable bits on overwrite too
	return os.Chmod(target, perm)
}

// CommonRootPrefix returns the top-level folder shared by every entry, with a trailing slash, or ""
// when the entries do not all live under one folder.
func CommonRootPrefix(names []string) string {
	root := ""
	hasNested := false
	for _, name := range names {
		name = normalizeEntryName(name)
		if name == "" {
			continue
		}

		first, rest, found := strings.Cut(name, "/")
		if !found || first == "" {
			// a file at the top level means there is no synthetic root folder
			return ""
		}
		if root == "" {
			root = first
		} else if root != first {
			return ""
		}
		if rest != "" {
			hasNested = true
		}
	}

	if root == "" || !hasNested || root == ".." {
		return ""
	}

	return root + "/"
}

// SecureTarget joins rel onto root and rejects results that leave root.
func SecureTarget(root, rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", NewPathTraversalError(rel)
	}

	target, err := sanity.ValidatePathWithinBase(root, filepath.FromSlash(rel))
	if err != nil {
		return "", NewPathTraversalError(rel).WithUnderlyingErrors(err)
	}

	return target, nil
}

func normalizeEntryName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	return name
}

func isTarGz(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz")
}
