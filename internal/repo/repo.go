// Package repo bootstraps and locates a working directory's .crfs
// metadata directory.
package repo

import (
	"errors"
	"os"
	"path/filepath"
)

// CrfsDir is the name of the engine's metadata directory within a working
// directory.
const CrfsDir = ".crfs"

// Init creates the .crfs directory structure for a fresh working directory:
// the content-addressed object store, the meta-snapshot area, the config
// directory, and the trash staging area. Unlike the teacher's InitRepo,
// nothing here starts a background service: this data model keeps no
// append-only log to compact, and spec.md §5 requires the engine to stay
// single-threaded with no internal parallelism regardless.
func Init(path string) error {
	crfsPath := filepath.Join(path, CrfsDir)
	if _, err := os.Stat(crfsPath); err == nil {
		return errors.New("crfs: repository already exists here")
	}

	dirs := []string{
		crfsPath,
		filepath.Join(crfsPath, "objects"),
		filepath.Join(crfsPath, "meta"),
		filepath.Join(crfsPath, "config"),
		filepath.Join(crfsPath, "trash"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// FindRoot searches for a .crfs directory walking up from start, returning
// the working directory that contains it.
func FindRoot(start string) (string, error) {
	cur, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(cur, CrfsDir)); err == nil {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", os.ErrNotExist
		}
		cur = parent
	}
}
