package procexec_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"stormview/internal/logging"
	"stormview/internal/procexec"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a POSIX shell")
	}
}

func TestRunReportsExitCode(t *testing.T) {
	requireUnix(t)
	runner := procexec.NewRunner(logging.NewNop(), time.Second)

	var stdout bytes.Buffer
	status, err := runner.Run(context.Background(), procexec.Spec{
		Name:    "script",
		Command: "/bin/sh",
		Args:    []string{"-c", "echo hello; exit 3"},
		Stdout:  &stdout,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if status.Code != 3 || status.Success() {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.ShellCode() != 3 {
		t.Fatalf("unexpected shell code: %d", status.ShellCode())
	}
	if strings.TrimSpace(stdout.String()) != "hello" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestRunUsesWorkingDirAndEnv(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	runner := procexec.NewRunner(logging.NewNop(), time.Second)

	status, err := runner.Run(context.Background(), procexec.Spec{
		Name:    "touch",
		Command: "/bin/sh",
		Args:    []string{"-c", `printf '%s' "$MARKER" > marker.txt`},
		Dir:     dir,
		Env:     []string{"MARKER=weekly"},
	})
	if err != nil || !status.Success() {
		t.Fatalf("unexpected result: status=%+v err=%v", status, err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "marker.txt"))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if string(content) != "weekly" {
		t.Fatalf("unexpected marker content: %q", content)
	}
}

func TestRunReportsSignalDeath(t *testing.T) {
	requireUnix(t)
	runner := procexec.NewRunner(logging.NewNop(), time.Second)

	status, err := runner.Run(context.Background(), procexec.Spec{
		Name:    "suicide",
		Command: "/bin/sh",
		Args:    []string{"-c", "kill -KILL $$"},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if status.Signal != "SIGKILL" {
		t.Fatalf("expected SIGKILL, got %+v", status)
	}
	if status.ShellCode() != 137 {
		t.Fatalf("expected shell code 137, got %d", status.ShellCode())
	}
	if status.String() != "terminated by SIGKILL" {
		t.Fatalf("unexpected string: %q", status.String())
	}
}

func TestRunMissingBinaryIsStartError(t *testing.T) {
	runner := procexec.NewRunner(logging.NewNop(), time.Second)

	status, err := runner.Run(context.Background(), procexec.Spec{
		Name:    "app",
		Command: "definitely-not-a-real-binary-stormview",
	})
	var startErr *procexec.StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("expected StartError, got %v", err)
	}
	if !startErr.NotFound() {
		t.Fatalf("expected NotFound, got %v", startErr.Err)
	}
	if status.Code != procexec.ExitCodeNotFound {
		t.Fatalf("expected exit code 127, got %d", status.Code)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	runner := procexec.NewRunner(logging.NewNop(), time.Second)
	if _, err := runner.Run(context.Background(), procexec.Spec{Name: "empty"}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestRunCancelTerminatesChild(t *testing.T) {
	requireUnix(t)
	runner := procexec.NewRunner(logging.NewNop(), 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	status, err := runner.Run(ctx, procexec.Spec{
		Name:    "sleeper",
		Command: "/bin/sh",
		Args:    []string{"-c", "exec sleep 30"},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("cancel took too long: %v", elapsed)
	}
	if status.Signal != "SIGTERM" {
		t.Fatalf("expected SIGTERM termination, got %+v", status)
	}
}

func TestCommandLineQuotesArgs(t *testing.T) {
	spec := procexec.Spec{Command: "streamlit", Args: []string{"run", "my app.py"}}
	if got := spec.CommandLine(); got != `streamlit run "my app.py"` {
		t.Fatalf("unexpected command line: %q", got)
	}
}
