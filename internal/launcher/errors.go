package launcher

import (
	"errors"
	"fmt"

	"stormview/internal/procexec"
)

// ErrLocked indicates another launcher holds the project lock.
var ErrLocked = errors.New("another stormview launcher is running for this project")

// PreprocessError reports a preprocessing failure that stops the launch or an
// explicit preprocess run.
type PreprocessError struct {
	Status procexec.ExitStatus
	// Err is set when the program could not be started.
	Err error
}

func (e *PreprocessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("preprocessing failed: %v", e.Err)
	}
	return fmt.Sprintf("preprocessing failed: %s", e.Status)
}

func (e *PreprocessError) Unwrap() error { return e.Err }

// ExitCode returns the preprocessing program's shell-style status.
func (e *PreprocessError) ExitCode() int {
	if code := e.Status.ShellCode(); code != 0 {
		return code
	}
	return 1
}

// LaunchError reports that the application process could not be started.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch application: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExitCode mirrors the shell status for a command that could not run.
func (e *LaunchError) ExitCode() int { return procexec.ExitCodeNotFound }

// ExitError carries a non-zero application exit so callers can propagate it.
type ExitError struct {
	Status procexec.ExitStatus
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("application exited: %s", e.Status)
}

// ExitCode returns the application's shell-style exit status.
func (e *ExitError) ExitCode() int { return e.Status.ShellCode() }
