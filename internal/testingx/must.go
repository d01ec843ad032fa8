// Package testingx provides helpers for use with the testing package.
package testingx

import (
	"os"
	"path/filepath"
	"testing"
)

// Must provides a concise way to handle a returned error in test setup that
// "should never happen".
//
// It must not be used to check the condition under test itself, the failure
// message it produces says nothing about what was expected.
//
//	m := testingx.Must[*mappings.Map](t)(mappings.Decode("AAAA"))
func Must[T any](t *testing.T) func(v T, err error) T {
	return func(v T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatalf("Got: unexpected error: %s. Want: no error.", err)
		}
		return v
	}
}

// WriteFile writes content into a file called name inside a fresh temporary
// directory and returns the file path.
func WriteFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Got: failed to write %q: %s. Want: no error.", path, err)
	}
	return path
}
