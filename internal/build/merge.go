package build

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// Merge walks dir and returns every file path relative to it, slash
// separated and sorted. It never writes. A missing dir yields an empty
// manifest.
func Merge(dir string) ([]string, error) {
	manifest := []string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == "__pycache__" {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".pyc") || isTempFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		manifest = append(manifest, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(manifest)
	return manifest, nil
}

// isTempFile matches the names writeFileIfChanged stages writes under.
func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}
