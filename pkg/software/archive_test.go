// SPDX-License-Identifier: Apache-2.0

package software

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/require"
)

type archiveFile struct {
	name    string
	content string
}

func createTestZip(t *testing.T, path string, files []archiveFile) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err, "Failed to create zip file")
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, file := range files {
		if strings.HasSuffix(file.name, "/") {
			_, err := zw.Create(file.name)
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(file.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(file.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func createTestTarGz(t *testing.T, path string, files []archiveFile) {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err, "Failed to create tar.gz file")
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	for _, f := range files {
		if strings.HasSuffix(f.name, "/") {
			require.NoError(t, tarWriter.WriteHeader(&tar.Header{Name: f.name, Mode: 0o755, Typeflag: tar.TypeDir}))
			continue
		}
		require.NoError(t, tarWriter.WriteHeader(&tar.Header{
			Name:     f.name,
			Mode:     0o644,
			Size:     int64(len(f.content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tarWriter.Write([]byte(f.content))
		require.NoError(t, err)
	}
}

// snapshotTree maps every relative path under root to its content ("<dir>" for directories).
func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()

	tree := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			tree[rel] = "<dir>"
			return nil
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		tree[rel] = string(b)
		return nil
	})
	require.NoError(t, err)
	return tree
}

var rootedFiles = []archiveFile{
	{name: "toolkit-1.4.0/"},
	{name: "toolkit-1.4.0/README.md", content: "readme"},
	{name: "toolkit-1.4.0/bin/"},
	{name: "toolkit-1.4.0/bin/tool", content: "#!/bin/sh\necho tool\n"},
	{name: "toolkit-1.4.0/assets/pack/data.json", content: `{"a":1}`},
}

func TestExtractor_Extract_StripsRootFolder(t *testing.T) {
	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, "1.4.0.zip")
	createTestZip(t, archivePath, rootedFiles)

	dest := filepath.Join(tmp, "dest")
	installed, err := NewExtractor().Extract(archivePath, dest)
	require.NoError(t, err)
	require.Len(t, installed.Files, 3)

	for _, f := range rootedFiles {
		if strings.HasSuffix(f.name, "/") {
			continue
		}
		rel := strings.TrimPrefix(f.name, "toolkit-1.4.0/")
		content, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		require.NoError(t, err, "Failed to read extracted file: %s", rel)
		require.Equal(t, f.content, string(content))
	}

	_, err = os.Stat(filepath.Join(dest, "toolkit-1.4.0"))
	require.True(t, os.IsNotExist(err), "root folder must be stripped")
}

func TestExtractor_Extract_Idempotent(t *testing.T) {
	for _, name := range []string{"1.4.0.zip", "1.4.0.tar.gz"} {
		t.Run(name, func(t *testing.T) {
			tmp := t.TempDir()
			archivePath := filepath.Join(tmp, name)
			if strings.HasSuffix(name, ".zip") {
				createTestZip(t, archivePath, rootedFiles)
			} else {
				createTestTarGz(t, archivePath, rootedFiles)
			}

			dest := filepath.Join(tmp, "dest")
			x := NewExtractor()

			_, err := x.Extract(archivePath, dest)
			require.NoError(t, err)
			first := snapshotTree(t, dest)

			// tamper with one file; re-extraction must restore it
			require.NoError(t, os.WriteFile(filepath.Join(dest, "README.md"), []byte("local edit"), 0o644))

			_, err = x.Extract(archivePath, dest)
			require.NoError(t, err)
			second := snapshotTree(t, dest)

			require.Equal(t, first, second)
		})
	}
}

func TestExtractor_Extract_PathTraversal(t *testing.T) {
	testCases := []struct {
		name  string
		files []archiveFile
	}{
		{
			name: "parent escape after prefix strip",
			files: []archiveFile{
				{name: "toolkit/ok.txt", content: "ok"},
				{name: "toolkit/../../evil.txt", content: "evil"},
			},
		},
		{
			name: "parent escape without root folder",
			files: []archiveFile{
				{name: "ok.txt", content: "ok"},
				{name: "../evil.txt", content: "evil"},
			},
		},
		{
			name: "hidden traversal in nested path",
			files: []archiveFile{
				{name: "toolkit/a/b/../../../../evil.txt", content: "evil"},
				{name: "toolkit/ok.txt", content: "ok"},
			},
		},
		{
			name: "absolute entry",
			files: []archiveFile{
				{name: "/tmp/evil.txt", content: "evil"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tmp := t.TempDir()
			archivePath := filepath.Join(tmp, "crafted.zip")
			createTestZip(t, archivePath, tc.files)

			dest := filepath.Join(tmp, "nested", "dest")
			_, err := NewExtractor().Extract(archivePath, dest)
			require.Error(t, err)
			require.True(t, errorx.IsOfType(err, PathTraversalError), "got %v", err)
			require.Equal(t, KindCorruptArchive, Kind(err))

			// nothing is written, neither inside nor outside the destination
			_, err = os.Stat(dest)
			require.True(t, os.IsNotExist(err))
			_, err = os.Stat(filepath.Join(tmp, "evil.txt"))
			require.True(t, os.IsNotExist(err))
			_, err = os.Stat(filepath.Join(tmp, "nested", "evil.txt"))
			require.True(t, os.IsNotExist(err))
		})
	}
}

func TestExtractor_Extract_Corrupt(t *testing.T) {
	tmp := t.TempDir()

	notZip := filepath.Join(tmp, "garbage.zip")
	require.NoError(t, os.WriteFile(notZip, []byte("definitely not a zip"), 0o644))

	_, err := NewExtractor().Extract(notZip, filepath.Join(tmp, "dest"))
	require.Error(t, err)
	require.True(t, errorx.IsOfType(err, CorruptArchiveError))
	require.False(t, errorx.IsOfType(err, FilesystemError))

	notGz := filepath.Join(tmp, "garbage.tar.gz")
	require.NoError(t, os.WriteFile(notGz, []byte("definitely not gzip"), 0o644))

	_, err = NewExtractor().Extract(notGz, filepath.Join(tmp, "dest"))
	require.True(t, errorx.IsOfType(err, CorruptArchiveError))
}

func TestExtractor_Extract_IOFailure(t *testing.T) {
	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, "1.4.0.zip")
	createTestZip(t, archivePath, rootedFiles)

	// a regular file where the destination directory should be
	dest := filepath.Join(tmp, "dest")
	require.NoError(t, os.WriteFile(dest, []byte("in the way"), 0o644))

	_, err := NewExtractor().Extract(archivePath, dest)
	require.Error(t, err)
	require.True(t, errorx.IsOfType(err, FilesystemError), "got %v", err)
	require.False(t, errorx.IsOfType(err, CorruptArchiveError))
}

func TestExtractor_Extract_MissingArchive(t *testing.T) {
	_, err := NewExtractor().Extract(filepath.Join(t.TempDir(), "nope.zip"), t.TempDir())
	require.True(t, errorx.IsOfType(err, FilesystemError))
}

func TestCommonRootPrefix(t *testing.T) {
	testCases := []struct {
		name   string
		input  []string
		output string
	}{
		{"single root", []string{"kit-1.0/", "kit-1.0/a.txt", "kit-1.0/b/c.txt"}, "kit-1.0/"},
		{"no directory entry", []string{"kit-1.0/a.txt", "kit-1.0/b/c.txt"}, "kit-1.0/"},
		{"two roots", []string{"a/x.txt", "b/y.txt"}, ""},
		{"top level file", []string{"kit/a.txt", "README"}, ""},
		{"only the root dir", []string{"kit/"}, ""},
		{"dot slash prefix", []string{"./kit/a.txt", "./kit/b.txt"}, "kit/"},
		{"absolute", []string{"/kit/a.txt"}, ""},
		{"parent", []string{"../a.txt"}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.output, CommonRootPrefix(tc.input))
		})
	}
}

func TestSecureTarget(t *testing.T) {
	root := t.TempDir()

	ok := []string{"a.txt", "dir/a.txt", "dir/../a.txt", "..a", "a..b/c"}
	for _, rel := range ok {
		target, err := SecureTarget(root, rel)
		require.NoError(t, err, rel)
		require.True(t, strings.HasPrefix(target, root), rel)
	}

	bad := []string{"", "..", "../a", "dir/../../a", "/etc/passwd"}
	for _, rel := range bad {
		_, err := SecureTarget(root, rel)
		require.Error(t, err, rel)
		require.True(t, errorx.IsOfType(err, PathTraversalError), rel)
	}
}

func TestExtractor_Extract_OrderIsDeterministic(t *testing.T) {
	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, "1.4.0.zip")
	createTestZip(t, archivePath, rootedFiles)

	installed, err := NewExtractor().Extract(archivePath, filepath.Join(tmp, "dest"))
	require.NoError(t, err)

	again, err := NewExtractor().Extract(archivePath, filepath.Join(tmp, "dest"))
	require.NoError(t, err)
	require.Equal(t, installed.Files, again.Files)

	sorted := append([]string(nil), installed.Dirs...)
	sort.Strings(sorted)
	require.Contains(t, sorted, filepath.Join(tmp, "dest", "bin"))
}

func TestExtractor_Extract_TarDirectoryWithoutSlash(t *testing.T) {
	tmp := t.TempDir()
	archivePath := filepath.Join(tmp, "1.0.tar.gz")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	gzWriter := gzip.NewWriter(f)
	tarWriter := tar.NewWriter(gzWriter)
	require.NoError(t, tarWriter.WriteHeader(&tar.Header{Name: "toolkit-1.0", Mode: 0o755, Typeflag: tar.TypeDir}))
	require.NoError(t, tarWriter.WriteHeader(&tar.Header{Name: "toolkit-1.0/lib", Mode: 0o755, Typeflag: tar.TypeDir}))
	for _, name := range []string{"toolkit-1.0/tool.txt", "toolkit-1.0/lib/data.txt"} {
		require.NoError(t, tarWriter.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: 2, Typeflag: tar.TypeReg}))
		_, err = tarWriter.Write([]byte("ok"))
		require.NoError(t, err)
	}
	require.NoError(t, tarWriter.Close())
	require.NoError(t, gzWriter.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(tmp, "dest")
	installed, err := NewExtractor().Extract(archivePath, dest)
	require.NoError(t, err)
	require.Len(t, installed.Files, 2)

	tree := snapshotTree(t, dest)
	require.Len(t, tree, 4)
	require.Equal(t, "ok", tree["tool.txt"])
	require.Equal(t, "<dir>", tree["lib"])
	require.Equal(t, "ok", tree[filepath.Join("lib", "data.txt")])
	require.NotContains(t, tree, "toolkit-1.0")
}
