package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides lists environment variables that take precedence over the
// config file. Empty values are ignored.
type envOverrides struct {
	ProjectDir       string `env:"STORMVIEW_PROJECT_DIR"`
	PreprocessPolicy string `env:"STORMVIEW_PREPROCESS_POLICY"`
	AppCommand       string `env:"STREAMLIT_CMD"`
	LogLevel         string `env:"STORMVIEW_LOG_LEVEL"`
}

func (c *Config) applyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if v := strings.TrimSpace(overrides.ProjectDir); v != "" {
		c.Paths.ProjectDir = v
	}
	if v := strings.TrimSpace(overrides.PreprocessPolicy); v != "" {
		c.Preprocess.Policy = v
	}
	if v := strings.TrimSpace(overrides.AppCommand); v != "" {
		c.App.Command = v
	}
	if v := strings.TrimSpace(overrides.LogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}
