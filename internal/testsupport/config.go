package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"stormview/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a fresh project directory per test.
// Paths mirror the defaults but are absolute and isolated.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	project := filepath.Join(base, "project")
	if err := os.MkdirAll(project, 0o755); err != nil {
		t.Fatalf("mkdir project: %v", err)
	}

	cfgVal := config.Default()
	cfgVal.Paths.ProjectDir = project
	cfgVal.Paths.PreprocessedData = filepath.Join(project, "data", "preprocessed", "weekly_merged.parquet")
	cfgVal.Paths.CacheDir = filepath.Join(project, ".streamlit", "cache")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LockFile = filepath.Join(project, ".stormview.lock")

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithPreprocessScript installs an executable preprocessing stub with the
// given shell body and points the config at it.
func WithPreprocessScript(body string) ConfigOption {
	return func(b *configBuilder) {
		path := writeScript(b.t, filepath.Join(b.baseDir, "bin"), "preprocess", body)
		b.cfg.Preprocess.Command = path
		b.cfg.Preprocess.Args = nil
	}
}

// WithAppScript installs an executable application stub with the given shell
// body and points the config at it.
func WithAppScript(body string) ConfigOption {
	return func(b *configBuilder) {
		path := writeScript(b.t, filepath.Join(b.baseDir, "bin"), "app", body)
		b.cfg.App.Command = path
		b.cfg.App.Args = nil
	}
}

// WithFailFast switches the preprocessing policy to fail_fast.
func WithFailFast() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Preprocess.Policy = config.PolicyFailFast
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external commands
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"python3", "streamlit"}
		}
		binDir := filepath.Join(b.baseDir, "path-bin")
		for _, name := range names {
			writeScript(b.t, binDir, name, "exit 0")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ProjectDir)
}

func writeScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	script := []byte("#!/bin/sh\n" + body + "\n")
	if err := os.WriteFile(target, script, 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}
