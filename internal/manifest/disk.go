package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spiffcs/deprecator/internal/log"
)

// DiskLocator searches a directory tree.
type DiskLocator struct {
	Root string
}

// Locate implements Locator. Excluded directories are not descended into.
func (d DiskLocator) Locate(ctx context.Context, pattern Pattern) ([]File, error) {
	matcher, err := pattern.Compile()
	if err != nil {
		return nil, err
	}

	root := d.Root
	if root == "" {
		root = "."
	}
	log.Debug("loading files", "root", root, "pattern", pattern.Include)

	var files []File
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if rel != "." && (matcher.Excluded(rel+"/") || matcher.Excluded(rel+"/x")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !matcher.Match(rel) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		files = append(files, File{Path: rel, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	log.Debug("found manifests", "files", paths)
	return files, nil
}
