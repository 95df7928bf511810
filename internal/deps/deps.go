// Package deps reports whether the external programs a launch depends on can
// be found.
package deps

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"stormview/internal/config"
)

// Requirement defines an external program the launcher relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Dir resolves relative command paths (e.g. "./venv/bin/streamlit").
	Dir      string
	Optional bool
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	// Path is the resolved executable location when available.
	Path   string
	Detail string
}

// Requirements lists the programs a launch invokes for cfg.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{
			Name:        "Preprocessing",
			Command:     cfg.Preprocess.Command,
			Description: "Builds " + filepath.Base(cfg.Paths.PreprocessedData) + " when it is missing",
			Dir:         cfg.Paths.ProjectDir,
			// Only needed when the artifact is absent.
			Optional: true,
		},
		{
			Name:        "Application",
			Command:     cfg.App.Command,
			Description: "Serves the web application",
			Dir:         cfg.Paths.ProjectDir,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		status := Status{Requirement: req}
		if req.Command == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := lookPath(req.Command, req.Dir)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// Missing returns the required entries that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}

// lookPath resolves commands containing a path separator against dir, the
// same way the child process will see them, and bare names against PATH.
func lookPath(command, dir string) (string, error) {
	if strings.ContainsRune(command, filepath.Separator) && !filepath.IsAbs(command) && dir != "" {
		command = filepath.Join(dir, command)
	}
	return exec.LookPath(command)
}
