package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"media-dubber/internal/domain"
	"media-dubber/internal/engine"
)

// Diagnostic item IDs understood by the fix dispatcher.
const (
	ItemInterpreter = "engine_interpreter"
	ItemScript      = "engine_script"
	ItemArtifact    = "engine_artifact"
	ItemStagingDir  = "staging_dir"
	ItemFFmpeg      = "tool_ffmpeg"
)

// Checker validates the engine layout and the tools the engine shells out to.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks for layout and returns a combined report.
func (c *Checker) Run(layout engine.Layout) domain.DiagnosticReport {
	var items []domain.DiagnosticItem
	switch layout.Mode {
	case domain.DeploymentPackaged:
		items = append(items,
			c.checkArtifact(layout.Artifact),
			c.checkStagingDir(layout.StagingDir),
		)
	default:
		items = append(items,
			c.checkInterpreter(layout.Interpreter),
			c.checkFile(ItemScript, "Engine script", layout.Script,
				"Run the app from the repository root or set engine.script in config.toml."),
		)
	}
	items = append(items, c.checkFFmpeg())

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		Mode:        layout.Mode,
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkInterpreter accepts either a path or a bare command name on PATH.
func (c *Checker) checkInterpreter(interpreter string) domain.DiagnosticItem {
	if interpreter != "" && filepath.Base(interpreter) == interpreter {
		item := domain.DiagnosticItem{ID: ItemInterpreter, Name: "Engine interpreter"}
		path, err := c.lookPath(interpreter)
		if err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Interpreter not found in PATH: %s", interpreter)
			item.Hint = "Install it or set engine.interpreter in config.toml."
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", path)
		return item
	}
	return c.checkFile(ItemInterpreter, "Engine interpreter", interpreter,
		"Create the backend virtualenv or set engine.interpreter in config.toml.")
}

// checkArtifact verifies the bundled engine binary exists.
func (c *Checker) checkArtifact(artifact string) domain.DiagnosticItem {
	item := c.checkFile(ItemArtifact, "Engine binary", artifact,
		"Reinstall the application; the bundled engine is missing.")
	if item.Status == domain.DiagnosticStatusPass {
		item.Message = fmt.Sprintf("Bundled engine found: %s", artifact)
	}
	return item
}

// checkFile validates a required regular file.
func (c *Checker) checkFile(id, name, path, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(path) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = name + " path is empty."
		item.Hint = hint
		return item
	}

	info, err := c.stat(path)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if IsNotExist(err) {
			item.Message = fmt.Sprintf("File does not exist: %s", path)
		} else {
			item.Message = fmt.Sprintf("Cannot access file: %s", path)
		}
		item.Hint = hint
		return item
	}
	if info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Expected a file, found a directory: %s", path)
		item.Hint = hint
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found: %s", path)
	return item
}

// checkStagingDir validates staging directory existence and write access.
func (c *Checker) checkStagingDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   ItemStagingDir,
		Name: "Engine staging directory",
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Staging directory is empty."
		item.Hint = "Set engine.staging_dir in config.toml."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create staging directory: %s", dir)
		item.Hint = "Adjust filesystem permissions or choose another staging directory."
		item.Fixable = true
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Staging directory is not writable: %s", dir)
		item.Hint = "The engine is copied here before every run."
		item.Fixable = true
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkFFmpeg warns when the engine's audio extractor is missing. Packaged
// engines may bundle their own copy, so this never fails the report.
func (c *Checker) checkFFmpeg() domain.DiagnosticItem {
	path, err := c.lookPath("ffmpeg")
	if err != nil {
		return domain.DiagnosticItem{
			ID:      ItemFFmpeg,
			Name:    "ffmpeg",
			Status:  domain.DiagnosticStatusWarn,
			Message: "Tool not found in PATH: ffmpeg",
			Hint:    "The engine extracts audio with ffmpeg. Install it unless your engine bundles it.",
			Fixable: true,
		}
	}

	return domain.DiagnosticItem{
		ID:      ItemFFmpeg,
		Name:    "ffmpeg",
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
