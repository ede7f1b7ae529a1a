package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"heicconv/codec"
)

// DiscoverOptions tunes a directory walk.
type DiscoverOptions struct {
	// Skip lists directories that are pruned from the walk, typically the
	// output root when it lives inside the input root.
	Skip []string
	// OnError is called for entries that could not be read. The walk
	// continues past them. When nil they are ignored.
	OnError func(path string, err error)
}

// Discover walks root and returns every regular file whose extension
// matches one of exts, ignoring case. A symlinked root is resolved first;
// symlinks below it are not followed, so link cycles cannot make the walk
// loop. Results are sorted by RelPath.
func Discover(root string, exts []string, opts DiscoverOptions) ([]SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, root)
	}

	root, err = resolveDir(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}

	wanted := make(map[string]bool, len(exts))
	for _, ext := range exts {
		wanted[codec.NormalizeExt(ext)] = true
	}

	skip := make(map[string]bool, len(opts.Skip))
	for _, dir := range opts.Skip {
		if abs, err := resolveDir(dir); err == nil {
			skip[abs] = true
		}
	}

	var files []SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if opts.OnError != nil {
				opts.OnError(path, err)
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && skip[path] {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if !wanted[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, SourceFile{Path: path, RelPath: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error while exploring directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelPath < files[j].RelPath
	})
	return files, nil
}

// resolveDir returns the absolute, symlink free form of dir. A dir that does
// not exist yet keeps its cleaned absolute path.
func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil
		}
		return "", err
	}
	return resolved, nil
}
