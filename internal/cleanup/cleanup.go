// Package cleanup removes the artifacts of a previous Magento installation.
package cleanup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// MarkerFile is the access-control file kept in every cleaned directory.
const MarkerFile = ".htaccess"

// Plan lists what a cleanup removes, relative to Root.
type Plan struct {
	Root string
	// Files are removed outright.
	Files []string
	// Dirs are emptied; the directory itself and every Keep file below it survive.
	Dirs []string
	// Keep is the file name preserved inside Dirs.
	Keep string
}

// DefaultPlan returns the cleanup of a Magento root: the generated env.php and
// the contents of var, pub/static, generated and vendor.
func DefaultPlan(root string) Plan {
	return Plan{
		Root:  root,
		Files: []string{filepath.Join("app", "etc", "env.php")},
		Dirs: []string{
			"var",
			filepath.Join("pub", "static"),
			"generated",
			"vendor",
		},
		Keep: MarkerFile,
	}
}

// Result summarizes a cleanup.
type Result struct {
	Removed int
	Kept    []string
}

// Execute applies the plan. Missing files and directories are skipped.
func (p Plan) Execute(logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if p.Root == "" {
		return Result{}, fmt.Errorf("cleanup root is empty")
	}

	var res Result
	for _, rel := range p.Files {
		path := filepath.Join(p.Root, rel)
		err := os.Remove(path)
		switch {
		case err == nil:
			res.Removed++
			logger.Debug("removed file", "path", path)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return res, fmt.Errorf("remove %q: %w", path, err)
		}
	}

	for _, rel := range p.Dirs {
		dir := filepath.Join(p.Root, rel)
		info, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("directory absent, skipping", "path", dir)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("stat %q: %w", dir, err)
		}
		if !info.IsDir() {
			return res, fmt.Errorf("%q is not a directory", dir)
		}
		if _, err := p.emptyDir(dir, &res, logger); err != nil {
			return res, err
		}
	}
	return res, nil
}

// emptyDir removes everything under dir except Keep files and reports whether
// dir ended up empty.
func (p Plan) emptyDir(dir string, res *Result, logger *slog.Logger) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read %q: %w", dir, err)
	}

	empty := true
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			childEmpty, err := p.emptyDir(path, res, logger)
			if err != nil {
				return false, err
			}
			if !childEmpty {
				empty = false
				continue
			}
			if err := os.Remove(path); err != nil {
				return false, fmt.Errorf("remove %q: %w", path, err)
			}
			res.Removed++
			continue
		}

		if p.Keep != "" && entry.Name() == p.Keep {
			res.Kept = append(res.Kept, path)
			empty = false
			continue
		}
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("remove %q: %w", path, err)
		}
		res.Removed++
	}
	logger.Debug("emptied directory", "path", dir, "empty", empty)
	return empty, nil
}
