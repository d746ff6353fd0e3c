package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// stagedPerm makes the staged copy executable by its owner.
const stagedPerm os.FileMode = 0o755

// Stager keeps a writable, executable working copy of the bundled engine.
// The copy is rebuilt on every call so an updated bundle always takes effect.
type Stager struct {
	logger   *slog.Logger
	stat     func(name string) (os.FileInfo, error)
	remove   func(name string) error
	mkdirAll func(path string, perm os.FileMode) error
	open     func(name string) (*os.File, error)
	create   func(name string) (*os.File, error)
	chmod    func(name string, mode os.FileMode) error
}

// NewStager builds a stager backed by the real filesystem.
func NewStager(logger *slog.Logger) *Stager {
	if logger == nil {
		logger = discardLogger()
	}
	return &Stager{
		logger:   logger,
		stat:     os.Stat,
		remove:   os.Remove,
		mkdirAll: os.MkdirAll,
		open:     os.Open,
		create: func(name string) (*os.File, error) {
			return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		},
		chmod: os.Chmod,
	}
}

// Stage copies source over destination and marks it executable. It returns
// the staged path.
func (s *Stager) Stage(source, destination string) (string, error) {
	info, err := s.stat(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &StageError{Op: "locate", Path: source, Err: ErrMissingEngineArtifact}
		}
		return "", &StageError{Op: "locate", Path: source, Err: err}
	}
	if info.IsDir() {
		return "", &StageError{Op: "locate", Path: source, Err: fmt.Errorf("%w: path is a directory", ErrMissingEngineArtifact)}
	}

	if err := s.mkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", &StageError{Op: "mkdir", Path: filepath.Dir(destination), Err: err}
	}

	if _, err := s.stat(destination); err == nil {
		if err := s.remove(destination); err != nil {
			s.logger.Warn("remove previous staged engine", "path", destination, "error", err)
		}
	}

	if err := s.copyFile(source, destination); err != nil {
		return "", &StageError{Op: "copy", Path: destination, Err: err}
	}
	if err := s.chmod(destination, stagedPerm); err != nil {
		return "", &StageError{Op: "chmod", Path: destination, Err: err}
	}

	s.logger.Debug("engine staged", "source", source, "destination", destination, "bytes", info.Size())
	return destination, nil
}

func (s *Stager) copyFile(source, destination string) error {
	in, err := s.open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := s.create(destination)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
