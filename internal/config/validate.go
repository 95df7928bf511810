package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePreprocess(); err != nil {
		return err
	}
	if err := c.validateApp(); err != nil {
		return err
	}
	if c.RunHistory.Keep < 0 {
		return errors.New("run_history.keep must be zero (keep everything) or positive")
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.PreprocessedData) == "" {
		return errors.New("paths.preprocessed_data must be set")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.CacheDir == c.Paths.ProjectDir {
		return fmt.Errorf("paths.cache_dir %q must not be the project directory", c.Paths.CacheDir)
	}
	for _, dir := range c.Paths.ExtraCacheDirs {
		if dir == c.Paths.ProjectDir {
			return fmt.Errorf("paths.extra_cache_dirs entry %q must not be the project directory", dir)
		}
	}
	return nil
}

func (c *Config) validatePreprocess() error {
	if c.Preprocess.Command == "" {
		return errors.New("preprocess.command must be set")
	}
	switch c.Preprocess.Policy {
	case PolicyBestEffort, PolicyFailFast:
		return nil
	default:
		return fmt.Errorf("preprocess.policy: unsupported value %q (want %s or %s)", c.Preprocess.Policy, PolicyBestEffort, PolicyFailFast)
	}
}

func (c *Config) validateApp() error {
	if c.App.Command == "" {
		return errors.New("app.command must be set")
	}
	if c.App.StopGraceSeconds <= 0 {
		return errors.New("app.stop_grace_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
