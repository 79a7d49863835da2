package main

import (
	"strings"
	"sync"

	"log/slog"

	"burnish/internal/config"
	"burnish/internal/jobs"
	"burnish/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		if exists {
			c.configPath = resolvedPath
		}
	})
	return c.config, c.configErr
}

// resolvedConfigPath is the path forwarded to spawned workers. Empty when the
// process is running on defaults with no config file present.
func (c *commandContext) resolvedConfigPath() string {
	_, _ = c.ensureConfig()
	return c.configPath
}

// cliLogger returns a stderr console logger for store-level warnings emitted
// while a management subcommand runs.
func (c *commandContext) cliLogger() *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return logging.NewNop()
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) openStore(logger *slog.Logger) (*jobs.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return jobs.Open(cfg, logger)
}
