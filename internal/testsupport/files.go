package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path (and parents) with the given content.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// MakeDir creates dir and a placeholder entry so removal is observable.
func MakeDir(t testing.TB, dir string) {
	t.Helper()
	WriteFile(t, filepath.Join(dir, "entry"), "cached")
}

// Exists reports whether path exists.
func Exists(t testing.TB, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	t.Fatalf("stat %s: %v", path, err)
	return false
}
