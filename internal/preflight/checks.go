package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that path is an existing directory with read,
// write, and execute permission.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCreatableDirectory passes when path is an accessible directory or does
// not exist yet but its nearest existing ancestor is writable.
func CheckCreatableDirectory(name, path string) Result {
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	ancestor := existingAncestor(path)
	if ancestor == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing parent)", path)}
	}
	if err := unix.Access(ancestor, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, ancestor, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// CheckRemovable passes when path is absent or its parent allows removing it.
func CheckRemovable(name, path string) Result {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (absent)", path)}
	} else if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	parent := filepath.Dir(path)
	if err := unix.Access(parent, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: parent not writable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (removable)", path)}
}

// CheckEntryScript looks for the first .py argument and verifies it exists
// relative to dir. ok is false when args name no Python script.
func CheckEntryScript(name, dir string, args []string) (Result, bool) {
	var script string
	for _, arg := range args {
		if strings.HasSuffix(strings.ToLower(arg), ".py") {
			script = arg
			break
		}
	}
	if script == "" {
		return Result{}, false
	}
	path := script
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	info, err := os.Stat(path)
	switch {
	case err == nil && info.Mode().IsRegular():
		return Result{Name: name, Passed: true, Detail: path}, true
	case err == nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a regular file)", path)}, true
	case errors.Is(err, fs.ErrNotExist):
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}, true
	default:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}, true
	}
}

func existingAncestor(path string) string {
	for dir := filepath.Clean(path); ; {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
