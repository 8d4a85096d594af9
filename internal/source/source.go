// Package source resolves command-line inputs into the package files to
// extract.
package source

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jchantrell/soundrip/internal/asset"
	"github.com/spf13/afero"
)

// PackageExtension is the extension of package files picked up from directories
const PackageExtension = ".uasset"

// Resolve expands inputs into a sorted, de-duplicated list of package paths.
// Files are taken as given, directories are walked for package files.
func Resolve(fsys afero.Fs, inputs []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string

	add := func(path string) {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}

	for _, input := range inputs {
		info, err := fsys.Stat(input)
		if err != nil {
			return nil, fmt.Errorf("resolving input %s: %w", input, err)
		}

		if !info.IsDir() {
			add(input)
			continue
		}

		found := 0
		err = afero.Walk(fsys, input, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if IsPackage(path) {
				add(path)
				found++
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", input, err)
		}

		slog.Debug("Scanned directory", "path", input, "packages", found)
	}

	sort.Strings(paths)
	return paths, nil
}

// IsPackage reports whether path names a package file
func IsPackage(path string) bool {
	return strings.EqualFold(filepath.Ext(path), PackageExtension)
}

// BulkPath returns the sibling bulk file path of a package
func BulkPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + asset.BulkExtension
}
