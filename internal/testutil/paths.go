// Package testutil holds helpers shared by package tests.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// FindProjectRoot returns the directory of the module's go.mod, searching
// upward from this source file.
func FindProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}

	for dir := filepath.Dir(filename); ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// Fixture returns the absolute path of elems below the module's testdata
// directory.
func Fixture(t testing.TB, elems ...string) string {
	t.Helper()
	root, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("locating fixtures: %v", err)
	}
	return filepath.Join(append([]string{root, "testdata"}, elems...)...)
}
