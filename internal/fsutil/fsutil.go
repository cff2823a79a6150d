// Package fsutil provides the filesystem helpers shared by the launcher:
// path expansion, directory creation, and forced reclaim of run directories.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExpandPath expands a leading ~ to the user's home directory and returns
// an absolute path.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return filepath.Abs(path)
}

// EnsureDir creates path along with any missing parents. It is a no-op when
// the directory already exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// ForceRemove deletes a run directory even when container processes running
// as another user left read-only entries behind. Permissions are widened
// deepest-first so a locked parent cannot mask a locked child; chmod failures
// on individual entries are tolerated, and so is the final removal error.
// ForceRemove runs inside failure-cleanup paths where a secondary error would
// mask the original one, so it never reports failure.
func ForceRemove(path string) {
	if _, err := os.Lstat(path); err != nil {
		return
	}
	var entries []string
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p != path {
			entries = append(entries, p)
		}
		return nil
	})
	sort.Sort(sort.Reverse(sort.StringSlice(entries)))
	for _, p := range entries {
		_ = os.Chmod(p, 0o777)
	}
	_ = os.Chmod(path, 0o777)
	_ = os.RemoveAll(path)
}
