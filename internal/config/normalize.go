package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.applyEnv(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePreprocess()
	c.normalizeApp()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ProjectDir) == "" {
		c.Paths.ProjectDir = defaultProjectDir
	}
	if c.Paths.ProjectDir, err = expandPath(strings.TrimSpace(c.Paths.ProjectDir)); err != nil {
		return fmt.Errorf("paths.project_dir: %w", err)
	}
	base := c.Paths.ProjectDir

	if c.Paths.PreprocessedData, err = expandRelative(base, c.Paths.PreprocessedData); err != nil {
		return fmt.Errorf("paths.preprocessed_data: %w", err)
	}
	if c.Paths.CacheDir, err = expandRelative(base, c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	extras := make([]string, 0, len(c.Paths.ExtraCacheDirs))
	seen := map[string]struct{}{c.Paths.CacheDir: {}}
	for i, dir := range c.Paths.ExtraCacheDirs {
		expanded, err := expandRelative(base, dir)
		if err != nil {
			return fmt.Errorf("paths.extra_cache_dirs[%d]: %w", i, err)
		}
		if expanded == "" {
			continue
		}
		if _, dup := seen[expanded]; dup {
			continue
		}
		seen[expanded] = struct{}{}
		extras = append(extras, expanded)
	}
	c.Paths.ExtraCacheDirs = extras

	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LockFile, err = expandRelative(base, c.Paths.LockFile); err != nil {
		return fmt.Errorf("paths.lock_file: %w", err)
	}
	return nil
}

// Process arguments are passed through verbatim; only commands are trimmed.
func (c *Config) normalizePreprocess() {
	c.Preprocess.Command = strings.TrimSpace(c.Preprocess.Command)
	c.Preprocess.Policy = NormalizePolicy(c.Preprocess.Policy)
}

func (c *Config) normalizeApp() {
	c.App.Command = strings.TrimSpace(c.App.Command)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// NormalizePolicy canonicalizes user spellings of the preprocessing policy.
// Unknown values are returned lowercased so validation can reject them.
func NormalizePolicy(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "", "best_effort", "besteffort", "continue":
		return PolicyBestEffort
	case "fail_fast", "failfast", "strict":
		return PolicyFailFast
	default:
		return normalized
	}
}
