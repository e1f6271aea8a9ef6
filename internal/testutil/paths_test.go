package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindProjectRoot(t *testing.T) {
	root, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("FindProjectRoot returned error: %v", err)
	}
	if root == "" {
		t.Fatal("FindProjectRoot returned empty string")
	}

	goMod := filepath.Join(root, "go.mod")
	if _, err := os.Stat(goMod); err != nil {
		t.Fatalf("go.mod not found at %s: %v", goMod, err)
	}

	fixtures := filepath.Join(root, "testdata", "blocks")
	if info, err := os.Stat(fixtures); err != nil || !info.IsDir() {
		t.Fatalf("fixture blocks directory missing at %s: %v", fixtures, err)
	}
}

func TestWriteTree(t *testing.T) {
	root := t.TempDir()
	WriteTree(t, root, map[string]string{
		"a.txt":         "a",
		"nested/b/c.md": "c",
	})

	got, err := os.ReadFile(filepath.Join(root, "nested", "b", "c.md"))
	if err != nil {
		t.Fatalf("read nested file: %v", err)
	}
	if string(got) != "c" {
		t.Errorf("content = %q, want %q", got, "c")
	}
}
