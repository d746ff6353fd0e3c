package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"media-dubber/internal/domain"
)

func clearDeploymentEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvMode, EnvInterpreter, EnvScript, EnvArtifact, EnvStagingDir, EnvLogLevel, EnvGrace} {
		t.Setenv(key, "")
	}
}

// TestLoadDeploymentFromFile checks TOML decoding and home expansion.
func TestLoadDeploymentFromFile(t *testing.T) {
	clearDeploymentEnv(t)
	home := t.TempDir()
	path := filepath.Join(home, "config.toml")
	content := strings.Join([]string{
		`mode = "packaged"`,
		``,
		`[engine]`,
		`artifact = "~/bundle/process_video"`,
		`staging_dir = "~/data/engine"`,
		`termination_grace_seconds = 2`,
		``,
		`[logging]`,
		`level = "DEBUG"`,
		`format = "json"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, exists, err := LoadDeployment(path, home)
	if err != nil {
		t.Fatalf("LoadDeployment() error = %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if cfg.Mode != domain.DeploymentPackaged {
		t.Fatalf("mode = %q, want packaged", cfg.Mode)
	}
	if cfg.Engine.Artifact != filepath.Join(home, "bundle", "process_video") {
		t.Fatalf("artifact = %q", cfg.Engine.Artifact)
	}
	if cfg.Engine.StagingDir != filepath.Join(home, "data", "engine") {
		t.Fatalf("staging dir = %q", cfg.Engine.StagingDir)
	}
	if cfg.Engine.TerminationGraceSeconds != 2 {
		t.Fatalf("grace = %d, want 2", cfg.Engine.TerminationGraceSeconds)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}

	layout := cfg.Layout()
	if layout.StagedPath() != filepath.Join(home, "data", "engine", "process_video") {
		t.Fatalf("staged path = %q", layout.StagedPath())
	}
	if cfg.TerminationGrace().Seconds() != 2 {
		t.Fatalf("grace = %v", cfg.TerminationGrace())
	}
}

// TestLoadDeploymentDetectsMode checks mode detection from the bundle.
func TestLoadDeploymentDetectsMode(t *testing.T) {
	clearDeploymentEnv(t)
	home := t.TempDir()
	artifact := filepath.Join(home, "engine", "process_video")

	t.Setenv(EnvArtifact, artifact)
	cfg, exists, err := LoadDeployment(filepath.Join(home, "absent.toml"), home)
	if err != nil {
		t.Fatalf("LoadDeployment() error = %v", err)
	}
	if exists {
		t.Fatal("absent config should not be reported as existing")
	}
	if cfg.Mode != domain.DeploymentDevelopment {
		t.Fatalf("mode = %q, want development without artifact", cfg.Mode)
	}

	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(artifact, []byte("bin"), 0o755); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	cfg, _, err = LoadDeployment("", home)
	if err != nil {
		t.Fatalf("LoadDeployment() error = %v", err)
	}
	if cfg.Mode != domain.DeploymentPackaged {
		t.Fatalf("mode = %q, want packaged with artifact", cfg.Mode)
	}
}

// TestLoadDeploymentEnvOverridesMode checks the env override wins.
func TestLoadDeploymentEnvOverridesMode(t *testing.T) {
	clearDeploymentEnv(t)
	home := t.TempDir()
	t.Setenv(EnvMode, "Development")
	t.Setenv(EnvInterpreter, "/usr/bin/python3")

	cfg, _, err := LoadDeployment("", home)
	if err != nil {
		t.Fatalf("LoadDeployment() error = %v", err)
	}
	if cfg.Mode != domain.DeploymentDevelopment {
		t.Fatalf("mode = %q", cfg.Mode)
	}
	if cfg.Engine.Interpreter != "/usr/bin/python3" {
		t.Fatalf("interpreter = %q", cfg.Engine.Interpreter)
	}
}

// TestLoadDeploymentRejectsInvalid checks validation errors.
func TestLoadDeploymentRejectsInvalid(t *testing.T) {
	clearDeploymentEnv(t)
	home := t.TempDir()

	t.Setenv(EnvMode, "portable")
	if _, _, err := LoadDeployment("", home); err == nil {
		t.Fatal("expected unsupported mode error")
	}

	t.Setenv(EnvMode, "")
	path := filepath.Join(home, "bad.toml")
	if err := os.WriteFile(path, []byte("mode = [unterminated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := LoadDeployment(path, home); err == nil {
		t.Fatal("expected parse error")
	}
}
