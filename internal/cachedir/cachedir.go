// Package cachedir removes disposable framework cache directories.
package cachedir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Result reports what happened to one cache directory.
type Result struct {
	Path    string
	Existed bool
	Removed bool
	Err     error
}

// Describe returns a one-line human summary of the result.
func (r Result) Describe() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("could not clear cache %s: %v", r.Path, r.Err)
	case r.Removed:
		return "cleared cache directory " + r.Path
	default:
		return "no cache directory found at " + r.Path
	}
}

// Clear recursively removes path. A missing directory is not an error. An
// empty path is a no-op.
func Clear(path string) Result {
	path = strings.TrimSpace(path)
	result := Result{Path: path}
	if path == "" {
		return result
	}
	if _, err := os.Lstat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Err = fmt.Errorf("stat cache dir: %w", err)
		}
		return result
	}
	result.Existed = true
	if err := os.RemoveAll(path); err != nil {
		result.Err = fmt.Errorf("remove cache dir: %w", err)
		return result
	}
	result.Removed = true
	return result
}

// ClearAll clears every path in order and returns one result per non-empty path.
func ClearAll(paths ...string) []Result {
	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		results = append(results, Clear(path))
	}
	return results
}
