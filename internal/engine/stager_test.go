package engine

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TestStagerRefreshesCopy verifies delete-then-copy on repeated staging.
func TestStagerRefreshesCopy(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "bundle", "engine")
	destDir := filepath.Join(root, "data", "engine")
	dest := filepath.Join(destDir, "engine")
	mustWriteFile(t, source, "v1")

	s := NewStager(nil)
	got, err := s.Stage(source, dest)
	if err != nil {
		t.Fatalf("first Stage() error = %v", err)
	}
	if got != dest {
		t.Fatalf("staged path = %q, want %q", got, dest)
	}

	mustWriteFile(t, source, "v2-updated")
	if _, err := s.Stage(source, dest); err != nil {
		t.Fatalf("second Stage() error = %v", err)
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("staging dir entries = %d, want 1", len(entries))
	}

	content, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read staged: %v", err)
	}
	if string(content) != "v2-updated" {
		t.Fatalf("staged content = %q, want v2-updated", content)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(dest)
		if err != nil {
			t.Fatalf("stat staged: %v", err)
		}
		if info.Mode().Perm()&0o100 == 0 {
			t.Fatalf("staged mode = %v, want owner executable", info.Mode())
		}
	}
}

// TestStagerMissingSource checks the missing artifact error.
func TestStagerMissingSource(t *testing.T) {
	root := t.TempDir()
	_, err := NewStager(nil).Stage(filepath.Join(root, "absent"), filepath.Join(root, "out", "absent"))
	if err == nil {
		t.Fatal("expected error")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("error type = %T, want *StageError", err)
	}
	if !errors.Is(err, ErrMissingEngineArtifact) {
		t.Fatalf("error = %v, want ErrMissingEngineArtifact", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "out")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("destination dir should not be created, stat err = %v", statErr)
	}
}

// TestStagerToleratesRemoveError checks delete failures are logged, not fatal.
func TestStagerToleratesRemoveError(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "engine")
	dest := filepath.Join(root, "staged", "engine")
	mustWriteFile(t, source, "new")
	mustWriteFile(t, dest, "old")

	s := NewStager(nil)
	removeCalls := 0
	s.remove = func(string) error {
		removeCalls++
		return errors.New("busy")
	}

	if _, err := s.Stage(source, dest); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if removeCalls != 1 {
		t.Fatalf("remove calls = %d, want 1", removeCalls)
	}
	content, _ := os.ReadFile(dest)
	if string(content) != "new" {
		t.Fatalf("staged content = %q, want new", content)
	}
}

// TestStagerChmodFailure checks permission errors surface as StageError.
func TestStagerChmodFailure(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "engine")
	mustWriteFile(t, source, "bin")

	s := NewStager(nil)
	s.chmod = func(string, os.FileMode) error { return os.ErrPermission }

	_, err := s.Stage(source, filepath.Join(root, "staged", "engine"))
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("error type = %T, want *StageError", err)
	}
	if stageErr.Op != "chmod" {
		t.Fatalf("op = %q, want chmod", stageErr.Op)
	}
}

// mustWriteFile creates parent directory and writes file content.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
