package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"media-dubber/internal/config"
	"media-dubber/internal/engine"
	"media-dubber/internal/logging"
	"media-dubber/internal/process"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	deployment config.Deployment
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureDeployment() (config.Deployment, error) {
	c.configOnce.Do(func() {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			c.configErr = fmt.Errorf("resolve user home: %w", err)
			return
		}
		path := config.DefaultDeploymentPath(homeDir)
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.deployment, _, c.configErr = config.LoadDeployment(path, homeDir)
	})
	return c.deployment, c.configErr
}

// logger writes to stderr only; the CLI never writes the app log file.
func (c *commandContext) logger(stderr io.Writer) (*slog.Logger, error) {
	dep, err := c.ensureDeployment()
	if err != nil {
		return nil, err
	}
	level := dep.Logging.Level
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		level = *c.logLevelFlag
	}
	if level == "" || level == "info" {
		level = "warn"
	}
	logger, _, err := logging.New(logging.Options{
		Level:   level,
		Format:  dep.Logging.Format,
		Console: stderr,
	})
	return logger, err
}

func (c *commandContext) resolver(logger *slog.Logger) (*engine.Resolver, error) {
	dep, err := c.ensureDeployment()
	if err != nil {
		return nil, err
	}
	return engine.NewResolver(dep.Layout(), engine.NewStager(logger)), nil
}

func (c *commandContext) bridge(logger *slog.Logger) (*engine.Bridge, error) {
	dep, err := c.ensureDeployment()
	if err != nil {
		return nil, err
	}
	resolver, err := c.resolver(logger)
	if err != nil {
		return nil, err
	}
	supervisor := process.NewSupervisor(
		process.WithLogger(logger),
		process.WithTerminationGrace(dep.TerminationGrace()),
	)
	return engine.NewBridge(resolver, engine.SupervisorLauncher{Supervisor: supervisor}, logger), nil
}
