package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := ExpandPath("~/x/y")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, "x", "y") {
		t.Fatalf("expand = %q", got)
	}
}

func TestExpandPathAbsolute(t *testing.T) {
	got, err := ExpandPath("/tmp/../tmp/z")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != "/tmp/z" {
		t.Fatalf("expand = %q", got)
	}
}

func TestEnsureDirIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("dir missing after ensure: %v", err)
	}
}

func TestForceRemoveReadOnlyTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "run")
	locked := filepath.Join(root, "pgdata", "base")
	if err := os.MkdirAll(locked, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	file := filepath.Join(locked, "0001.dat")
	if err := os.WriteFile(file, []byte("x"), 0o400); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A read-only directory is what actually defeats a plain removal.
	if err := os.Chmod(locked, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.RemoveAll(root); err == nil {
		// Root can delete anything; the permission scenario needs an
		// unprivileged user to be meaningful.
		t.Skip("removal not blocked by permissions in this environment")
	}

	ForceRemove(root)
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("directory still present after ForceRemove: %v", err)
	}
}

func TestForceRemoveMissingPathIsNoop(t *testing.T) {
	ForceRemove(filepath.Join(t.TempDir(), "absent"))
}

func TestForceRemovePlainTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "run")
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "f"), []byte(strings.Repeat("x", 10)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ForceRemove(root)
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("directory still present: %v", err)
	}
}
