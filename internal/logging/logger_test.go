package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewAutoFormatUsesJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "info", Format: "auto", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closeFn()

	logger.Info("engine run finished", "outcome", "success")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "engine run finished" || record["outcome"] != "success" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestNewConsoleFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "warn", Format: "console", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("shown", "path", "/tmp/x")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "path=/tmp/x") {
		t.Fatalf("unexpected console output: %q", out)
	}
}

func TestNewWritesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "debug", Format: "json", Dir: dir, Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("staged engine")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, logFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "staged engine") {
		t.Fatalf("log file missing record: %q", content)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected source location at debug level: %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := New(Options{Format: "xml", Console: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
