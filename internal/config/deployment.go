package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"media-dubber/internal/domain"
	"media-dubber/internal/engine"
)

// Environment overrides applied after the config file.
const (
	EnvMode        = "MEDIA_DUBBER_MODE"
	EnvInterpreter = "MEDIA_DUBBER_INTERPRETER"
	EnvScript      = "MEDIA_DUBBER_SCRIPT"
	EnvArtifact    = "MEDIA_DUBBER_ENGINE"
	EnvStagingDir  = "MEDIA_DUBBER_STAGING_DIR"
	EnvLogLevel    = "MEDIA_DUBBER_LOG_LEVEL"
	EnvGrace       = "MEDIA_DUBBER_TERMINATION_GRACE"
)

// Deployment is the startup-time layout of the engine. It is loaded once and
// never changes while the process runs.
type Deployment struct {
	Mode    domain.DeploymentMode `toml:"mode"`
	Engine  Engine                `toml:"engine"`
	Logging Logging               `toml:"logging"`
}

// Engine locates the engine for both deployment modes.
type Engine struct {
	Interpreter             string `toml:"interpreter"`
	Script                  string `toml:"script"`
	Artifact                string `toml:"artifact"`
	StagingDir              string `toml:"staging_dir"`
	TerminationGraceSeconds int    `toml:"termination_grace_seconds"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// Layout converts the deployment into the engine layout.
func (d Deployment) Layout() engine.Layout {
	return engine.Layout{
		Mode:        d.Mode,
		Interpreter: d.Engine.Interpreter,
		Script:      d.Engine.Script,
		Artifact:    d.Engine.Artifact,
		StagingDir:  d.Engine.StagingDir,
	}
}

// TerminationGrace is the delay between the polite and forced stop.
func (d Deployment) TerminationGrace() time.Duration {
	return time.Duration(d.Engine.TerminationGraceSeconds) * time.Second
}

// DefaultDeploymentPath returns the config file location under the app dir.
func DefaultDeploymentPath(homeDir string) string {
	return filepath.Join(AppDir(homeDir), "config.toml")
}

// LoadDeployment reads path (optional), applies environment overrides, detects
// the mode when unset and validates the result. The returned bool reports
// whether the file existed.
func LoadDeployment(path, homeDir string) (Deployment, bool, error) {
	cfg := DefaultDeployment(homeDir)

	exists := false
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			exists = true
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Deployment{}, false, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Deployment{}, false, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Deployment{}, false, err
	}
	cfg.normalize(homeDir)
	if err := cfg.Validate(); err != nil {
		return Deployment{}, false, err
	}
	return cfg, exists, nil
}

func (d *Deployment) applyEnv(getenv func(string) string) error {
	overrides := []struct {
		key    string
		target *string
	}{
		{EnvInterpreter, &d.Engine.Interpreter},
		{EnvScript, &d.Engine.Script},
		{EnvArtifact, &d.Engine.Artifact},
		{EnvStagingDir, &d.Engine.StagingDir},
		{EnvLogLevel, &d.Logging.Level},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(getenv(o.key)); v != "" {
			*o.target = v
		}
	}

	if v := strings.TrimSpace(getenv(EnvMode)); v != "" {
		d.Mode = domain.DeploymentMode(strings.ToLower(v))
	}
	if v := strings.TrimSpace(getenv(EnvGrace)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvGrace, err)
		}
		d.Engine.TerminationGraceSeconds = n
	}
	return nil
}

func (d *Deployment) normalize(homeDir string) {
	d.Engine.Interpreter = expandHome(strings.TrimSpace(d.Engine.Interpreter), homeDir)
	d.Engine.Script = expandHome(strings.TrimSpace(d.Engine.Script), homeDir)
	d.Engine.Artifact = expandHome(strings.TrimSpace(d.Engine.Artifact), homeDir)
	d.Engine.StagingDir = expandHome(strings.TrimSpace(d.Engine.StagingDir), homeDir)
	d.Logging.Dir = expandHome(strings.TrimSpace(d.Logging.Dir), homeDir)
	d.Logging.Level = strings.ToLower(strings.TrimSpace(d.Logging.Level))
	d.Logging.Format = strings.ToLower(strings.TrimSpace(d.Logging.Format))
	if d.Engine.TerminationGraceSeconds <= 0 {
		d.Engine.TerminationGraceSeconds = 5
	}

	if d.Mode == "" {
		d.Mode = detectMode(d.Engine.Artifact)
	}
}

// Validate checks the fields required by the selected mode.
func (d Deployment) Validate() error {
	switch d.Mode {
	case domain.DeploymentDevelopment:
		if d.Engine.Interpreter == "" {
			return errors.New("engine.interpreter is required in development mode")
		}
		if d.Engine.Script == "" {
			return errors.New("engine.script is required in development mode")
		}
	case domain.DeploymentPackaged:
		if d.Engine.Artifact == "" {
			return errors.New("engine.artifact is required in packaged mode")
		}
		if d.Engine.StagingDir == "" {
			return errors.New("engine.staging_dir is required in packaged mode")
		}
	default:
		return fmt.Errorf("mode: unsupported value %q", d.Mode)
	}

	switch d.Logging.Format {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", d.Logging.Format)
	}
	return nil
}

// detectMode picks packaged when a bundled engine is present.
func detectMode(artifact string) domain.DeploymentMode {
	if artifact != "" {
		if info, err := os.Stat(artifact); err == nil && !info.IsDir() {
			return domain.DeploymentPackaged
		}
	}
	return domain.DeploymentDevelopment
}

func expandHome(path, homeDir string) string {
	if path == "~" {
		return homeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
