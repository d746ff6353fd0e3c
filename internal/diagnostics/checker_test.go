package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"media-dubber/internal/domain"
	"media-dubber/internal/engine"
)

func foundTool(name string) (string, error) { return "/usr/local/bin/" + name, nil }

func missingTool(string) (string, error) { return "", errors.New("not found") }

// TestCheckerRunDevelopmentAllPass validates happy-path diagnostics report.
func TestCheckerRunDevelopmentAllPass(t *testing.T) {
	root := t.TempDir()
	interpreter := filepath.Join(root, "venv", "bin", "python")
	script := filepath.Join(root, "process_video.py")
	for _, path := range []string{interpreter, script} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("stub"), 0o755); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	checker := NewCheckerForTests(foundTool, os.Stat, os.MkdirAll, os.CreateTemp, os.Remove)
	report := checker.Run(engine.Layout{
		Mode:        domain.DeploymentDevelopment,
		Interpreter: interpreter,
		Script:      script,
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if report.Mode != domain.DeploymentDevelopment {
		t.Fatalf("mode = %s, want development", report.Mode)
	}
	assertStatusByID(t, report, ItemInterpreter, domain.DiagnosticStatusPass)
	assertStatusByID(t, report, ItemScript, domain.DiagnosticStatusPass)
	assertStatusByID(t, report, ItemFFmpeg, domain.DiagnosticStatusPass)
}

// TestCheckerRunDevelopmentBareInterpreter resolves interpreter names on PATH.
func TestCheckerRunDevelopmentBareInterpreter(t *testing.T) {
	checker := NewCheckerForTests(missingTool, os.Stat, os.MkdirAll, os.CreateTemp, os.Remove)
	report := checker.Run(engine.Layout{
		Mode:        domain.DeploymentDevelopment,
		Interpreter: "python3",
		Script:      "/path/that/does/not/exist.py",
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}
	assertStatusByID(t, report, ItemInterpreter, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemScript, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemFFmpeg, domain.DiagnosticStatusWarn)
}

// TestCheckerRunPackaged validates artifact and staging checks.
func TestCheckerRunPackaged(t *testing.T) {
	root := t.TempDir()
	artifact := filepath.Join(root, "resources", "process_video")
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(artifact, []byte("bin"), 0o755); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	staging := filepath.Join(root, "staging")

	checker := NewCheckerForTests(foundTool, os.Stat, os.MkdirAll, os.CreateTemp, os.Remove)
	report := checker.Run(engine.Layout{
		Mode:       domain.DeploymentPackaged,
		Artifact:   artifact,
		StagingDir: staging,
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	assertStatusByID(t, report, ItemArtifact, domain.DiagnosticStatusPass)
	assertStatusByID(t, report, ItemStagingDir, domain.DiagnosticStatusPass)

	entries, err := os.ReadDir(staging)
	if err != nil {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("write check left %d files behind", len(entries))
	}
}

// TestCheckerRunPackagedMissingArtifactAndUnwritableStaging validates failures.
func TestCheckerRunPackagedMissingArtifactAndUnwritableStaging(t *testing.T) {
	checker := NewCheckerForTests(
		foundTool,
		os.Stat,
		os.MkdirAll,
		func(string, string) (*os.File, error) { return nil, os.ErrPermission },
		os.Remove,
	)
	report := checker.Run(engine.Layout{
		Mode:       domain.DeploymentPackaged,
		Artifact:   filepath.Join(t.TempDir(), "missing"),
		StagingDir: t.TempDir(),
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}
	assertStatusByID(t, report, ItemArtifact, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemStagingDir, domain.DiagnosticStatusFail)
	for _, item := range report.Items {
		if item.ID == ItemStagingDir && !item.Fixable {
			t.Fatal("expected staging dir failure to be fixable")
		}
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
