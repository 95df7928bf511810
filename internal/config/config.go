package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains filesystem locations used by the launcher.
type Paths struct {
	ProjectDir       string   `toml:"project_dir"`
	PreprocessedData string   `toml:"preprocessed_data"`
	CacheDir         string   `toml:"cache_dir"`
	ExtraCacheDirs   []string `toml:"extra_cache_dirs"`
	StateDir         string   `toml:"state_dir"`
	LockFile         string   `toml:"lock_file"`
}

// Preprocess describes the external preprocessing program.
type Preprocess struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Policy  string   `toml:"policy"`
}

// App describes the long-running web application process.
type App struct {
	Command          string   `toml:"command"`
	Args             []string `toml:"args"`
	StopGraceSeconds int      `toml:"stop_grace_seconds"`
}

// RunHistory controls the SQLite launch ledger.
type RunHistory struct {
	Enabled bool `toml:"enabled"`
	Keep    int  `toml:"keep"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for stormview.
//
// Configuration sections by subsystem:
//   - Paths: project directory, data artifact, cache and state locations
//   - Preprocess: the program that builds the preprocessed dataset
//   - App: the Streamlit application entry point
//   - RunHistory: launch ledger retention
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Preprocess Preprocess `toml:"preprocess"`
	App        App        `toml:"app"`
	RunHistory RunHistory `toml:"run_history"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/stormview/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strings.TrimSpace(strict.String()))
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stormview.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory used for logs and run history.
// The cache and data directories are owned by external programs and are never
// created here.
func (c *Config) EnsureDirectories() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.StateDir, err)
	}
	return nil
}

// CacheDirs returns the primary cache directory followed by any extras.
func (c *Config) CacheDirs() []string {
	dirs := make([]string, 0, 1+len(c.Paths.ExtraCacheDirs))
	if c.Paths.CacheDir != "" {
		dirs = append(dirs, c.Paths.CacheDir)
	}
	return append(dirs, c.Paths.ExtraCacheDirs...)
}

// PreprocessedDir returns the directory holding the preprocessed artifacts.
func (c *Config) PreprocessedDir() string {
	return filepath.Dir(c.Paths.PreprocessedData)
}

// RunHistoryPath returns the SQLite database path for the launch ledger.
func (c *Config) RunHistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// LogPath returns the persistent log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "stormview.log")
}

// StopGrace returns how long a cancelled child may take to exit before it is killed.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.App.StopGraceSeconds) * time.Second
}

// FailFast reports whether a failed preprocessing step aborts the launch.
func (c *Config) FailFast() bool {
	return c.Preprocess.Policy == PolicyFailFast
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// expandRelative expands pathValue, resolving relative paths against base
// instead of the process working directory.
func expandRelative(base, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", nil
	}
	if !strings.HasPrefix(pathValue, "~") && !filepath.IsAbs(pathValue) && base != "" {
		pathValue = filepath.Join(base, pathValue)
	}
	return expandPath(pathValue)
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
