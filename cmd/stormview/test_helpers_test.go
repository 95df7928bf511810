package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"stormview/internal/config"
	"stormview/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	projectDir string
}

// setupCLITestEnv writes a config file for an isolated project whose app and
// preprocessing commands are shell stubs. Both stubs append to order.log in
// the project directory so tests can assert invocation order.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	base := []testsupport.ConfigOption{
		testsupport.WithPreprocessScript(`mkdir -p data/preprocessed
: > data/preprocessed/weekly_merged.parquet
echo preprocess >> order.log`),
		testsupport.WithAppScript(`if [ -d .streamlit/cache ]; then echo cache-present >> order.log; fi
echo app >> order.log`),
	}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	t.Setenv("STREAMLIT_CMD", "")
	t.Setenv("STORMVIEW_PROJECT_DIR", "")
	t.Setenv("STORMVIEW_PREPROCESS_POLICY", "")
	cfg.Logging.Level = "warn"

	configPath := filepath.Join(testsupport.BaseDir(cfg), "stormview.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, projectDir: cfg.Paths.ProjectDir}
}

func (e *cliTestEnv) orderLog(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.projectDir, "order.log"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read order log: %v", err)
	}
	return strings.Fields(string(data))
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireOrder(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected invocation order: got %v want %v", got, want)
	}
}
