package output

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCleanerDeletesInsidePrefix(t *testing.T) {
	root := t.TempDir()
	cleaner, err := NewSecureCleaner(root)
	if err != nil {
		t.Fatalf("cleaner: %v", err)
	}

	path := filepath.Join(root, "stdout.log")
	if err := os.WriteFile(path, []byte("raw scan output"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := cleaner.Delete(path, true); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should be gone")
	}
}

func TestCleanerRefusesOutsidePrefix(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	cleaner, err := NewSecureCleaner(root)
	if err != nil {
		t.Fatalf("cleaner: %v", err)
	}

	path := filepath.Join(other, "precious.txt")
	if err := os.WriteFile(path, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := cleaner.Delete(path, false); err == nil {
		t.Error("expected refusal for path outside prefixes")
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("file outside prefix must survive")
	}
}

func TestCleanerRefusesTraversal(t *testing.T) {
	root := t.TempDir()
	cleaner, err := NewSecureCleaner(root)
	if err != nil {
		t.Fatalf("cleaner: %v", err)
	}

	if err := cleaner.Delete(filepath.Join(root, "..", "victim"), false); err == nil {
		t.Error("expected refusal for .. traversal")
	}
}

func TestCleanerRefusesSymlink(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	cleaner, err := NewSecureCleaner(root)
	if err != nil {
		t.Fatalf("cleaner: %v", err)
	}

	target := filepath.Join(other, "target.txt")
	if err := os.WriteFile(target, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := cleaner.Delete(link, false); err == nil {
		t.Error("expected refusal for symlink")
	}
	if _, err := os.Stat(target); err != nil {
		t.Error("symlink target must survive")
	}
}
