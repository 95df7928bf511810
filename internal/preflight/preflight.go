package preflight

import (
	"path/filepath"

	"stormview/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the preflight checks that apply to cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Project directory", cfg.Paths.ProjectDir),
		CheckCreatableDirectory("State directory", cfg.Paths.StateDir),
		CheckCreatableDirectory("Data directory", filepath.Dir(cfg.Paths.PreprocessedData)),
	}
	for _, dir := range cfg.CacheDirs() {
		results = append(results, CheckRemovable("Cache directory", dir))
	}

	if r, ok := CheckEntryScript("Preprocess script", cfg.Paths.ProjectDir, cfg.Preprocess.Args); ok {
		results = append(results, r)
	}
	if r, ok := CheckEntryScript("App entry point", cfg.Paths.ProjectDir, cfg.App.Args); ok {
		results = append(results, r)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
