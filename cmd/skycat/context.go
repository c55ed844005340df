package main

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"skycat/internal/bitmask"
	"skycat/internal/config"
	"skycat/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	registryOnce sync.Once
	registry     *bitmask.Registry
	registryErr  error
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
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		paths := cfg.Logging.Paths
		if len(paths) == 0 {
			paths = []string{"stderr"}
			if cfg.Paths.LogDir != "" {
				paths = append(paths, filepath.Join(cfg.Paths.LogDir, "skycat.log"))
			}
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			OutputPaths: paths,
		})
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) ensureRegistry() (*bitmask.Registry, error) {
	c.registryOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.registryErr = err
			return
		}
		if cfg.Registry.Path != "" {
			c.registry, c.registryErr = bitmask.LoadFile(cfg.Registry.Path)
			return
		}
		c.registry, c.registryErr = bitmask.Load()
	})
	return c.registry, c.registryErr
}
