package procexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"stormview/internal/logging"
)

// ExitCodeNotFound mirrors the shell's status for a command that could not be executed.
const ExitCodeNotFound = 127

// Spec describes one external process invocation.
type Spec struct {
	// Name labels the process in logs (e.g. "preprocess", "app").
	Name    string
	Command string
	Args    []string
	// Dir is the working directory; empty inherits the launcher's.
	Dir string
	// Env entries are appended to the launcher's environment.
	Env []string
	// Nil streams inherit the launcher's standard streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// CommandLine renders the command and arguments for display.
func (s Spec) CommandLine() string {
	parts := make([]string, 0, 1+len(s.Args))
	parts = append(parts, s.Command)
	for _, arg := range s.Args {
		if strings.ContainsAny(arg, " \t\"'") {
			arg = fmt.Sprintf("%q", arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// ExitStatus reports how a process terminated.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a signal.
	Code int
	// Signal is the terminating signal name (e.g. "SIGINT"), if any.
	Signal   string
	Duration time.Duration
}

// Success reports a zero exit code.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == ""
}

// Interrupted reports a death by the terminal's interrupt or quit signal.
func (s ExitStatus) Interrupted() bool {
	return s.Signal == "SIGINT" || s.Signal == "SIGQUIT"
}

// ShellCode returns the status a POSIX shell would report: the exit code, or
// 128+signal for signal deaths.
func (s ExitStatus) ShellCode() int {
	if s.Signal != "" {
		if sig := unix.SignalNum(s.Signal); sig != 0 {
			return 128 + int(sig)
		}
		return 128
	}
	return s.Code
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return "terminated by " + s.Signal
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// StartError reports that a process could not be started at all.
type StartError struct {
	Name    string
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s (%s): %v", e.Name, e.Command, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// NotFound reports whether the executable could not be located.
func (e *StartError) NotFound() bool {
	return errors.Is(e.Err, exec.ErrNotFound) || errors.Is(e.Err, os.ErrNotExist)
}

// Runner executes processes in the foreground.
type Runner struct {
	logger *slog.Logger
	// StopGrace bounds how long a cancelled child may take to exit before it is killed.
	StopGrace time.Duration
	// Relay lists signals forwarded to the running child.
	Relay []os.Signal
	// Hold lists signals the launcher absorbs while a child runs.
	Hold []os.Signal
}

// NewRunner constructs a Runner with the default signal handling.
func NewRunner(logger *slog.Logger, stopGrace time.Duration) *Runner {
	return &Runner{
		logger:    logging.NewComponentLogger(logger, "procexec"),
		StopGrace: stopGrace,
		Relay:     []os.Signal{unix.SIGTERM, unix.SIGHUP},
		Hold:      []os.Signal{os.Interrupt, unix.SIGQUIT},
	}
}

// Run starts the process described by spec and waits for it to exit.
func (r *Runner) Run(ctx context.Context, spec Spec) (ExitStatus, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return ExitStatus{Code: ExitCodeNotFound}, &StartError{Name: spec.Name, Command: spec.Command, Err: exec.ErrNotFound}
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdin = orFile(spec.Stdin, os.Stdin)
	cmd.Stdout = orWriter(spec.Stdout, os.Stdout)
	cmd.Stderr = orWriter(spec.Stderr, os.Stderr)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(unix.SIGTERM)
	}
	cmd.WaitDelay = r.StopGrace

	signals := make(chan os.Signal, 4)
	watched := append(append([]os.Signal(nil), r.Relay...), r.Hold...)
	if len(watched) > 0 {
		signal.Notify(signals, watched...)
		defer signal.Stop(signals)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return ExitStatus{Code: ExitCodeNotFound}, &StartError{Name: spec.Name, Command: spec.Command, Err: err}
	}
	r.logger.Debug("process started",
		logging.String("name", spec.Name),
		logging.String("command", spec.CommandLine()),
		logging.Int("pid", cmd.Process.Pid),
	)

	done := make(chan struct{})
	go r.relaySignals(cmd.Process, spec.Name, signals, done)

	waitErr := cmd.Wait()
	close(done)

	status := statusFromState(cmd.ProcessState)
	status.Duration = time.Since(started)
	if waitErr != nil && cmd.ProcessState == nil {
		return status, fmt.Errorf("wait for %s: %w", spec.Name, waitErr)
	}
	r.logger.Debug("process exited",
		logging.String("name", spec.Name),
		logging.String("status", status.String()),
		logging.Duration("duration", status.Duration),
	)
	return status, nil
}

func (r *Runner) relaySignals(proc *os.Process, name string, signals <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig := <-signals:
			if !containsSignal(r.Relay, sig) {
				r.logger.Debug("signal left to process group", logging.String("name", name), logging.String("signal", sig.String()))
				continue
			}
			if err := proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
				r.logger.Warn("relay signal failed", logging.String("name", name), logging.String("signal", sig.String()), logging.Error(err))
			}
		}
	}
}

func statusFromState(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: unix.SignalName(ws.Signal())}
	}
	return ExitStatus{Code: state.ExitCode()}
}

func containsSignal(list []os.Signal, sig os.Signal) bool {
	for _, candidate := range list {
		if candidate == sig {
			return true
		}
	}
	return false
}

func orFile(r io.Reader, fallback *os.File) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func orWriter(w io.Writer, fallback *os.File) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
