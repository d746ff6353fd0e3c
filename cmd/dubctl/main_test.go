package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-dubber/internal/domain"
	"media-dubber/internal/engine"
	"media-dubber/internal/protocol"
)

const fakeEngineEnv = "DUBCTL_FAKE_ENGINE"

// TestMain lets the test binary stand in for the engine script: the
// development interpreter is os.Args[0] and the behaviour comes from env.
func TestMain(m *testing.M) {
	switch os.Getenv(fakeEngineEnv) {
	case "":
		os.Exit(m.Run())
	case "success":
		fmt.Println(`{"type": "status", "message": "Extracting audio..."}`)
		fmt.Println("moviepy noise")
		fmt.Println(`{"type": "progress", "value": 50.4, "remaining_seconds": 7}`)
		fmt.Println(`{"type": "success", "output_file": "/tmp/clip_translated.txt", "original": "ciao", "translated": "hello", "target_lang": "en"}`)
		os.Exit(0)
	case "echo":
		args, _ := json.Marshal(map[string]string{"type": "status", "message": strings.Join(os.Args[1:], " ")})
		fmt.Println(string(args))
		fmt.Println(`{"type": "success", "output_file": "/tmp/clip_translated.txt"}`)
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "Traceback: boom")
		os.Exit(3)
	}
	os.Exit(2)
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args...)
}

func runCLIContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func useFakeEngine(t *testing.T, mode string) {
	t.Helper()
	t.Setenv("MEDIA_DUBBER_MODE", "development")
	t.Setenv("MEDIA_DUBBER_INTERPRETER", os.Args[0])
	t.Setenv("MEDIA_DUBBER_SCRIPT", "-test.run=^$")
	t.Setenv("MEDIA_DUBBER_LOG_LEVEL", "")
	t.Setenv(fakeEngineEnv, mode)
}

func TestRunCommandStreamsEvents(t *testing.T) {
	useFakeEngine(t, "success")
	config := filepath.Join(t.TempDir(), "absent.toml")

	stdout, _, err := runCLI(t, "--config", config, "run", "--file", "/videos/clip.mp4", "--lang", "EN")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{
		"status Extracting audio...",
		"progress 50% (7s left)",
		"output /tmp/clip_translated.txt",
		"hello",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "moviepy") {
		t.Fatalf("engine noise leaked to output:\n%s", stdout)
	}
}

func TestRunCommandReportsFailure(t *testing.T) {
	useFakeEngine(t, "fail")
	config := filepath.Join(t.TempDir(), "absent.toml")

	_, stderr, err := runCLI(t, "--config", config, "run", "--file", "/videos/clip.mp4")
	if !errors.Is(err, errReported) {
		t.Fatalf("err = %v, want errReported", err)
	}
	var exitErr *engine.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("err = %v, want ExitError code 3", err)
	}
	if !strings.Contains(stderr, "Traceback: boom") || !strings.Contains(stderr, "engine exit code: 3") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunCommandPassesLanguageCodesVerbatim(t *testing.T) {
	useFakeEngine(t, "echo")
	stdout, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.toml"),
		"run", "--file", "/videos/clip.mp4", "--lang", " iw ", "--source_lang", "auto")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout, "--lang iw --source_lang auto") {
		t.Fatalf("engine argv not verbatim:\n%s", stdout)
	}
}

func TestRunCommandRequiresLanguage(t *testing.T) {
	useFakeEngine(t, "echo")
	_, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.toml"),
		"run", "--file", "/videos/clip.mp4", "--lang", "  ")
	if !errors.Is(err, engine.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestResolveCommandPrintsDevelopmentCommand(t *testing.T) {
	useFakeEngine(t, "")
	stdout, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.toml"),
		"resolve", "--file", "/videos/clip.mp4", "--lang", "es", "--source_lang", "it_IT")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, want := range []string{"mode: development", "--file /videos/clip.mp4", "--lang es", "--source_lang it_IT", "env: PYTHONUNBUFFERED=1"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestStageCommandRequiresPackagedMode(t *testing.T) {
	useFakeEngine(t, "")
	if _, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.toml"), "stage"); err == nil {
		t.Fatal("expected error outside packaged mode")
	}
}

func usePackagedEngine(t *testing.T, root string) string {
	t.Helper()
	artifact := filepath.Join(root, "bundle", "process_video")
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(artifact, []byte("engine-v2"), 0o755); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	t.Setenv("MEDIA_DUBBER_MODE", "packaged")
	t.Setenv("MEDIA_DUBBER_ENGINE", artifact)
	t.Setenv("MEDIA_DUBBER_STAGING_DIR", filepath.Join(root, "staging"))
	return artifact
}

func TestStageCommandCopiesArtifact(t *testing.T) {
	root := t.TempDir()
	usePackagedEngine(t, root)

	stdout, _, err := runCLI(t, "--config", filepath.Join(root, "absent.toml"), "stage")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	staged := strings.TrimSpace(stdout)
	data, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("read staged: %v", err)
	}
	if string(data) != "engine-v2" {
		t.Fatalf("staged content = %q", data)
	}
}

func TestStageCommandWaitsForStagingLock(t *testing.T) {
	root := t.TempDir()
	artifact := usePackagedEngine(t, root)
	layout := engine.Layout{
		Mode:       domain.DeploymentPackaged,
		Artifact:   artifact,
		StagingDir: filepath.Join(root, "staging"),
	}
	unlock, err := engine.LockStaging(context.Background(), layout, nil)
	if err != nil {
		t.Fatalf("hold lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, _, err = runCLIContext(t, ctx, "--config", filepath.Join(root, "absent.toml"), "stage")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("stage under lock: err = %v, want deadline exceeded", err)
	}
	if _, err := os.Stat(layout.StagedPath()); !os.IsNotExist(err) {
		t.Fatalf("staged file touched while locked: %v", err)
	}

	unlock()
	if _, _, err := runCLI(t, "--config", filepath.Join(root, "absent.toml"), "stage"); err != nil {
		t.Fatalf("stage after release: %v", err)
	}
}

func TestLanguagesCommandListsCatalog(t *testing.T) {
	stdout, _, err := runCLI(t, "languages")
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	if !strings.Contains(stdout, "en") || !strings.Contains(stdout, "English") {
		t.Fatalf("stdout = %q", stdout)
	}
	if !strings.Contains(stdout, "Spanish (Español)") {
		t.Fatalf("expected native names:\n%s", stdout)
	}
}

func TestLineRendererSkipsRepeatedProgress(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	r.Emit(engine.Event{Kind: engine.EventProgress, Progress: protocol.Progress{Percent: 0, RemainingSeconds: 30}})
	r.Emit(engine.Event{Kind: engine.EventProgress, Progress: protocol.Progress{Percent: 10}})
	r.Emit(engine.Event{Kind: engine.EventProgress, Progress: protocol.Progress{Percent: 10}})
	r.Emit(engine.Event{Kind: engine.EventProgress, Progress: protocol.Progress{Percent: 20}})
	r.Close()

	if got := strings.Count(buf.String(), "progress"); got != 3 {
		t.Fatalf("progress lines = %d, want 3:\n%s", got, buf.String())
	}
	if !strings.HasPrefix(buf.String(), "progress 0% (30s left)\n") {
		t.Fatalf("first progress missing:\n%s", buf.String())
	}
}
