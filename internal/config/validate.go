package config

import (
	"errors"
	"fmt"
	"os"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.RunLedger == "" {
		return errors.New("paths.run_ledger must be set")
	}
	return nil
}

func (c *Config) validateStore() error {
	n := c.Store.NSide
	if n < 1 || n > 1<<29 || n&(n-1) != 0 {
		return fmt.Errorf("store.nside must be a power of two in [1, 2^29], not %d", n)
	}
	if c.Store.ChunkRows < 1 {
		return fmt.Errorf("store.chunk_rows must be positive, not %d", c.Store.ChunkRows)
	}
	return nil
}

func (c *Config) validateRegistry() error {
	if c.Registry.Path == "" {
		return nil
	}
	info, err := os.Stat(c.Registry.Path)
	if err != nil {
		return fmt.Errorf("registry.path: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("registry.path %s is a directory", c.Registry.Path)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be 'console' or 'json', not %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, not %q", c.Logging.Level)
	}
	return nil
}
