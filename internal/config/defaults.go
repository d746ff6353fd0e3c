package config

import (
	"os"
	"path/filepath"
	goruntime "runtime"

	"media-dubber/internal/domain"
)

const (
	appDirName       = ".media-dubber"
	engineBinaryName = "process_video"
)

// DefaultSettings returns baseline user settings for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		TargetLanguage: "en",
		SourceLanguage: "it-IT",
		LastInputDir:   filepath.Join(homeDir, "Videos"),
	}
}

// AppDir returns the per-user application data directory.
func AppDir(homeDir string) string {
	return filepath.Join(homeDir, appDirName)
}

// DefaultDeployment returns the deployment layout used when no config file
// overrides it. Mode is left empty so it is detected from the bundle.
func DefaultDeployment(homeDir string) Deployment {
	resources := resourcesDir()
	return Deployment{
		Engine: Engine{
			Interpreter:             filepath.Join("backend", "venv", "bin", "python"),
			Script:                  filepath.Join("backend", "process_video.py"),
			Artifact:                filepath.Join(resources, "engine", engineFileName()),
			StagingDir:              filepath.Join(AppDir(homeDir), "engine"),
			TerminationGraceSeconds: 5,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
			Dir:    filepath.Join(AppDir(homeDir), "logs"),
		},
	}
}

// engineFileName adds the platform executable suffix.
func engineFileName() string {
	if goruntime.GOOS == "windows" {
		return engineBinaryName + ".exe"
	}
	return engineBinaryName
}

// resourcesDir locates bundled resources relative to the running executable.
func resourcesDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	dir := filepath.Dir(exe)
	if goruntime.GOOS == "darwin" {
		// Contents/MacOS/<app> -> Contents/Resources
		return filepath.Join(filepath.Dir(dir), "Resources")
	}
	return dir
}
