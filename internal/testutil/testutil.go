// Package testutil provides shared test helpers: an in-memory Girder server and
// temporary database paths.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempDBPath returns a path for a throwaway SQLite database that is removed when the
// test ends.
func TempDBPath(t *testing.T) string {
	t.Helper()
	dbFile, err := os.CreateTemp("", "nbgirder-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	return dbFile.Name()
}

// WriteFile creates a file (and its parent directories) under root.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return abs
}
