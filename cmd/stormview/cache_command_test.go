package main

import (
	"path/filepath"
	"testing"

	"stormview/internal/testsupport"
)

func TestCacheClearReportsEachDirectory(t *testing.T) {
	extra := filepath.Join(t.TempDir(), "user-cache")
	env := setupCLITestEnv(t)
	env.cfg.Paths.ExtraCacheDirs = []string{extra}
	writeTestConfig(t, env.configPath, env.cfg)
	testsupport.MakeDir(t, env.cfg.Paths.CacheDir)

	out, err := runCLI(t, env.configPath, "cache", "clear")
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Cleared cache directory "+env.cfg.Paths.CacheDir)
	requireContains(t, out, "No cache directory found at "+extra)
	if testsupport.Exists(t, env.cfg.Paths.CacheDir) {
		t.Fatal("expected cache directory to be removed")
	}

	out, err = runCLI(t, env.configPath, "cache", "clear")
	if err != nil {
		t.Fatalf("second cache clear: %v", err)
	}
	requireContains(t, out, "No cache directory found at "+env.cfg.Paths.CacheDir)
}
