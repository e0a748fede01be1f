package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureStateDirs(t *testing.T) {
	base := t.TempDir()
	if err := EnsureStateDirs(base); err != nil {
		t.Fatalf("EnsureStateDirs: %v", err)
	}

	if PathsVar.Store != filepath.Join(base, "store") {
		t.Fatalf("Store = %s", PathsVar.Store)
	}
	if PathsVar.Audit != filepath.Join(base, "state", "audit") {
		t.Fatalf("Audit = %s", PathsVar.Audit)
	}
	for _, p := range []string{PathsVar.Store, PathsVar.Audit, PathsVar.Tmp} {
		fi, err := os.Stat(p)
		if err != nil || !fi.IsDir() {
			t.Fatalf("missing dir %s: %v", p, err)
		}
		if fi.Mode().Perm()&0o022 != 0 {
			t.Fatalf("dir %s is group/other writable: %v", p, fi.Mode())
		}
	}

	// idempotent on an existing layout
	if err := EnsureStateDirs(base); err != nil {
		t.Fatalf("second EnsureStateDirs: %v", err)
	}
}

func TestEnsureStateDirsRejectsSymlink(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "elsewhere")
	if err := os.MkdirAll(target, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(base, "store")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := EnsureStateDirs(base); err == nil {
		t.Fatalf("symlinked store dir accepted")
	}
}

func TestEnsureStateDirsRejectsFile(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "store"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := EnsureStateDirs(base); err == nil {
		t.Fatalf("regular file at store path accepted")
	}
}
