package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"beacon/internal/fileutil"
)

func TestWriteFileAtomicCreatesParents(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "a", "b", "doc.yml")
	if err := fileutil.WriteFileAtomic(target, []byte("value: 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "value: 1\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestWriteFileAtomicLeavesNoTempOnSuccess(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "doc.yml")
	if err := fileutil.WriteFileAtomic(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, found %d entries", len(entries))
	}
}

func TestPruneEmptyDirs(t *testing.T) {
	root := t.TempDir()
	leaf := filepath.Join(root, "x", "y", "z")
	if err := os.MkdirAll(leaf, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	fileutil.PruneEmptyDirs(leaf, root)
	if _, err := os.Stat(filepath.Join(root, "x")); !os.IsNotExist(err) {
		t.Fatalf("expected empty tree removed, got err=%v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("root must survive pruning: %v", err)
	}
}

func TestPruneEmptyDirsStopsAtNonEmpty(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "keep")
	leaf := filepath.Join(keep, "sub")
	if err := os.MkdirAll(leaf, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(keep, "doc.yml"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fileutil.PruneEmptyDirs(leaf, root)
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("non-empty parent must survive: %v", err)
	}
	if _, err := os.Stat(leaf); !os.IsNotExist(err) {
		t.Fatalf("empty leaf should be removed, got err=%v", err)
	}
}

func TestDirWritable(t *testing.T) {
	if err := fileutil.DirWritable(t.TempDir()); err != nil {
		t.Fatalf("DirWritable on temp dir: %v", err)
	}
	if err := fileutil.DirWritable(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
