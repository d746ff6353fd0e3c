package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"media-dubber/internal/domain"
	"media-dubber/internal/process"
)

// Layout describes where the engine lives for the active deployment mode.
type Layout struct {
	Mode domain.DeploymentMode
	// Interpreter and Script are used in development mode.
	Interpreter string
	Script      string
	// Artifact is the bundled engine binary; StagingDir receives its working copy.
	Artifact   string
	StagingDir string
}

// StagedPath is where the packaged engine copy is written.
func (l Layout) StagedPath() string {
	return filepath.Join(l.StagingDir, filepath.Base(l.Artifact))
}

// LockPath is the file lock guarding StagedPath.
func (l Layout) LockPath() string {
	return l.StagedPath() + ".lock"
}

// Resolver turns a job request into the command to execute.
type Resolver struct {
	layout Layout
	stager *Stager
}

// NewResolver builds a resolver for one immutable layout.
func NewResolver(layout Layout, stager *Stager) *Resolver {
	return &Resolver{layout: layout, stager: stager}
}

// Layout returns the resolver's deployment layout.
func (r *Resolver) Layout() Layout {
	return r.layout
}

// Resolve returns the command for req. In packaged mode it stages the engine
// first, so a *StageError means nothing should be spawned.
func (r *Resolver) Resolve(req domain.JobRequest) (process.Command, error) {
	if strings.TrimSpace(req.InputPath) == "" {
		return process.Command{}, fmt.Errorf("%w: input file path is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.TargetLanguage) == "" {
		return process.Command{}, fmt.Errorf("%w: target language is required", ErrInvalidRequest)
	}

	switch r.layout.Mode {
	case domain.DeploymentDevelopment:
		return process.Command{
			Path: r.layout.Interpreter,
			Args: append([]string{r.layout.Script}, engineArgs(req)...),
			Env:  []string{"PYTHONUNBUFFERED=1"},
		}, nil
	case domain.DeploymentPackaged:
		if r.stager == nil {
			return process.Command{}, fmt.Errorf("packaged mode requires a stager")
		}
		staged, err := r.stager.Stage(r.layout.Artifact, r.layout.StagedPath())
		if err != nil {
			return process.Command{}, err
		}
		return process.Command{
			Path: staged,
			Args: engineArgs(req),
		}, nil
	default:
		return process.Command{}, fmt.Errorf("unsupported deployment mode %q", r.layout.Mode)
	}
}

// engineArgs builds the engine CLI flags shared by both modes.
func engineArgs(req domain.JobRequest) []string {
	args := []string{
		"--file", req.InputPath,
		"--lang", req.TargetLanguage,
	}
	if src := strings.TrimSpace(req.SourceLanguage); src != "" {
		args = append(args, "--source_lang", src)
	}
	return args
}
