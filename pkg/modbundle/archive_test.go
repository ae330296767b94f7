// SPDX-License-Identifier: MPL-2.0

package modbundle

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/invowk/modhost/internal/testutil"
)

func writeModuleDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		testutil.MustWriteFile(t, filepath.Join(dir, filepath.FromSlash(name)), []byte(content))
	}
	return dir
}

func TestArchive(t *testing.T) {
	t.Parallel()

	files := sampleFiles()
	files[".git/HEAD"] = "ref: refs/heads/main"
	files["old.modpkg"] = "stale"
	files["notes.txt~"] = "backup"
	files["tmp/scratch.log"] = "scratch"
	dir := writeModuleDir(t, files)

	out := filepath.Join(t.TempDir(), "tools.modpkg")
	path, err := Archive(dir, ArchiveOptions{Output: out, Exclude: []string{"tmp/**"}})
	if err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	if path != out {
		t.Errorf("Archive() path = %q, want %q", path, out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	b, err := Open(data)
	if err != nil {
		t.Fatalf("Open(archived) error: %v", err)
	}
	if b.Manifest().Module != "Acme.Tools" {
		t.Errorf("Module = %q", b.Manifest().Module)
	}
	if !slices.Contains(b.ResourceNames(), "keyins.xml") {
		t.Errorf("ResourceNames() = %v, missing keyins.xml", b.ResourceNames())
	}

	entries := zipNames(t, data)
	for _, skipped := range []string{".git/HEAD", "old.modpkg", "notes.txt~", "tmp/scratch.log"} {
		if slices.Contains(entries, skipped) {
			t.Errorf("bundle should not contain %s, entries = %v", skipped, entries)
		}
	}
}

func TestArchive_InvalidModule(t *testing.T) {
	t.Parallel()

	dir := writeModuleDir(t, map[string]string{
		ManifestFile: "module: \"M\"\ntypes: [{name: \"M.C\", implements: [\"Command\"]}]\n",
	})
	out := filepath.Join(t.TempDir(), "m.modpkg")

	if _, err := Archive(dir, ArchiveOptions{Output: out}); err == nil {
		t.Fatal("Archive() should reject a module that breaks the Command contract")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("failed Archive() should remove %s, stat err = %v", out, err)
	}
}

func TestArchive_MissingManifest(t *testing.T) {
	t.Parallel()

	if _, err := Archive(t.TempDir(), ArchiveOptions{}); err == nil {
		t.Fatal("Archive() without module.cue should fail")
	}
}

func TestArchive_BadExclude(t *testing.T) {
	t.Parallel()

	dir := writeModuleDir(t, sampleFiles())
	_, err := Archive(dir, ArchiveOptions{Output: filepath.Join(t.TempDir(), "x.modpkg"), Exclude: []string{"[unclosed"}})
	if err == nil {
		t.Fatal("Archive() should reject invalid exclude patterns")
	}
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}
