// SPDX-License-Identifier: MPL-2.0

package modbundle

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultArchiveExcludes are skipped when packing a module directory.
var DefaultArchiveExcludes = []string{
	"**/.git/**",
	"**/.DS_Store",
	"**/*" + BundleExt,
	"**/*~",
}

// ArchiveOptions configures Archive.
type ArchiveOptions struct {
	// Output is the bundle path. Defaults to "<module>.modpkg" in the
	// current directory.
	Output string
	// Exclude lists extra doublestar patterns matched against slash paths
	// relative to the module directory.
	Exclude []string
}

// Archive packs the module directory dir into a bundle. The manifest is
// parsed first so an invalid module never produces a bundle. The bundle is
// then re-opened to check contracts, and removed on failure.
// Returns the absolute path of the created bundle.
func Archive(dir string, opts ArchiveOptions) (archivePath string, err error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(raw, filepath.Join(dir, ManifestFile))
	if err != nil {
		return "", err
	}

	excludes := append(append([]string(nil), DefaultArchiveExcludes...), opts.Exclude...)
	for _, pat := range excludes {
		if !doublestar.ValidatePattern(pat) {
			return "", fmt.Errorf("invalid exclude pattern %q", pat)
		}
	}

	outputPath := opts.Output
	if outputPath == "" {
		outputPath = m.Module + BundleExt
	}
	absOutputPath, err := filepath.Abs(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}

	if err := writeArchive(dir, absOutputPath, excludes); err != nil {
		_ = os.Remove(absOutputPath)
		return "", err
	}

	data, err := os.ReadFile(absOutputPath)
	if err != nil {
		return "", fmt.Errorf("failed to re-read bundle: %w", err)
	}
	if _, err := Open(data); err != nil {
		_ = os.Remove(absOutputPath)
		return "", err
	}

	return absOutputPath, nil
}

func writeArchive(dir, absOutputPath string, excludes []string) (err error) {
	zipFile, err := os.Create(absOutputPath)
	if err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	defer func() {
		if closeErr := zipFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	zipWriter := zip.NewWriter(zipFile)
	defer func() {
		if closeErr := zipWriter.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		relPath, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return fmt.Errorf("failed to get relative path: %w", relErr)
		}
		if relPath == "." {
			return nil
		}
		zipPath := filepath.ToSlash(relPath)

		if d.IsDir() {
			if excluded(zipPath, excludes) || excluded(zipPath+"/", excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if excluded(zipPath, excludes) {
			return nil
		}
		if abs, absErr := filepath.Abs(path); absErr == nil && abs == absOutputPath {
			return nil
		}

		fileData, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("failed to read file %s: %w", path, readErr)
		}

		fileInfo, infoErr := d.Info()
		if infoErr != nil {
			return fmt.Errorf("failed to get file info: %w", infoErr)
		}

		header, headerErr := zip.FileInfoHeader(fileInfo)
		if headerErr != nil {
			return fmt.Errorf("failed to create file header: %w", headerErr)
		}
		header.Name = zipPath
		header.Method = zip.Deflate

		writer, writerErr := zipWriter.CreateHeader(header)
		if writerErr != nil {
			return fmt.Errorf("failed to create bundle entry: %w", writerErr)
		}
		if _, writeErr := writer.Write(fileData); writeErr != nil {
			return fmt.Errorf("failed to write file data: %w", writeErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("failed to archive module: %w", walkErr)
	}
	return nil
}

func excluded(rel string, patterns []string) bool {
	for _, pat := range patterns {
		if matched, err := doublestar.Match(pat, rel); err == nil && matched {
			return true
		}
	}
	return false
}
