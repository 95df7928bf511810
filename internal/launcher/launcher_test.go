package launcher_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"stormview/internal/cachedir"
	"stormview/internal/launcher"
	"stormview/internal/logging"
	"stormview/internal/procexec"
	"stormview/internal/testsupport"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

func (f *fixture) requireCalls(t *testing.T, want ...string) {
	t.Helper()
	if want == nil {
		want = []string{}
	}
	if diff := cmp.Diff(want, f.rec.snapshot()); diff != "" {
		t.Fatalf("unexpected call order (-want +got):\n%s", diff)
	}
}

type fakeRunner struct {
	rec      *recorder
	statuses map[string]procexec.ExitStatus
	errs     map[string]error
}

func (f *fakeRunner) Run(_ context.Context, spec procexec.Spec) (procexec.ExitStatus, error) {
	f.rec.add(spec.Name)
	return f.statuses[spec.Name], f.errs[spec.Name]
}

type fixture struct {
	opts   launcher.Options
	rec    *recorder
	runner *fakeRunner
	phases []launcher.Phase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	rec := &recorder{}
	return &fixture{
		opts: launcher.OptionsFromConfig(cfg),
		rec:  rec,
		runner: &fakeRunner{
			rec:      rec,
			statuses: map[string]procexec.ExitStatus{},
			errs:     map[string]error{},
		},
	}
}

func (f *fixture) launcher(t *testing.T) *launcher.Launcher {
	t.Helper()
	l, err := launcher.New(f.opts, f.runner, logging.NewNop(),
		launcher.WithCacheClearer(func(path string) cachedir.Result {
			f.rec.add("delete-cache")
			return cachedir.Clear(path)
		}),
		launcher.WithObserver(launcher.ObserverFunc(func(p launcher.Phase, _ string) {
			f.phases = append(f.phases, p)
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestArtifactAbsentCachePresent(t *testing.T) {
	f := newFixture(t)
	testsupport.MakeDir(t, f.opts.CacheDirPath)

	result, err := f.launcher(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f.requireCalls(t, "preprocess", "delete-cache", "app")
	if testsupport.Exists(t, f.opts.CacheDirPath) {
		t.Fatal("expected cache dir to be removed")
	}
	if !result.Preprocessed || result.Preprocess == nil || !result.Launched {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.CacheCleared) != 1 || !result.CacheCleared[0].Removed {
		t.Fatalf("unexpected cache results: %+v", result.CacheCleared)
	}
	wantPhases := []launcher.Phase{launcher.PhaseCheck, launcher.PhasePreprocess, launcher.PhaseClearCache, launcher.PhaseLaunch, launcher.PhaseDone}
	if diff := cmp.Diff(wantPhases, f.phases); diff != "" {
		t.Fatalf("unexpected phases (-want +got):\n%s", diff)
	}
	if result.Finished.Before(result.Started) {
		t.Fatalf("finished before started: %+v", result)
	}
}

func TestArtifactPresentCacheAbsent(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteFile(t, f.opts.PreprocessedDataPath, "PAR1")

	result, err := f.launcher(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f.requireCalls(t, "delete-cache", "app")
	if result.Preprocessed || result.Preprocess != nil {
		t.Fatalf("preprocess should not run: %+v", result)
	}
	if len(result.CacheCleared) != 1 || result.CacheCleared[0].Existed || result.CacheCleared[0].Err != nil {
		t.Fatalf("expected no-op cache clear, got %+v", result.CacheCleared)
	}
	if testsupport.Exists(t, f.opts.CacheDirPath) {
		t.Fatal("cache dir must not exist")
	}
}

func TestDirectoryAtArtifactPathCountsAsAbsent(t *testing.T) {
	f := newFixture(t)
	testsupport.MakeDir(t, f.opts.PreprocessedDataPath)

	if _, err := f.launcher(t).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	f.requireCalls(t, "preprocess", "delete-cache", "app")
}

func TestBestEffortContinuesAfterPreprocessFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.statuses["preprocess"] = procexec.ExitStatus{Code: 1}

	result, err := f.launcher(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f.requireCalls(t, "preprocess", "delete-cache", "app")
	if result.Preprocess.Code != 1 {
		t.Fatalf("expected preprocess status to be recorded: %+v", result.Preprocess)
	}
}

func TestBestEffortContinuesAfterPreprocessStartFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.statuses["preprocess"] = procexec.ExitStatus{Code: procexec.ExitCodeNotFound}
	f.runner.errs["preprocess"] = errors.New("exec: not found")

	if _, err := f.launcher(t).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	f.requireCalls(t, "preprocess", "delete-cache", "app")
}

func TestInterruptedPreprocessAbortsUnderBestEffort(t *testing.T) {
	for _, sig := range []string{"SIGINT", "SIGQUIT"} {
		t.Run(sig, func(t *testing.T) {
			f := newFixture(t)
			f.runner.statuses["preprocess"] = procexec.ExitStatus{Code: -1, Signal: sig}
			testsupport.MakeDir(t, f.opts.CacheDirPath)

			result, err := f.launcher(t).Run(context.Background())
			var preErr *launcher.PreprocessError
			if !errors.As(err, &preErr) {
				t.Fatalf("expected PreprocessError, got %v", err)
			}
			want := map[string]int{"SIGINT": 130, "SIGQUIT": 131}[sig]
			if preErr.ExitCode() != want {
				t.Fatalf("exit code = %d, want %d", preErr.ExitCode(), want)
			}
			f.requireCalls(t, "preprocess")
			if result.Launched {
				t.Fatal("app must not launch after an interrupted preprocessing run")
			}
			if !testsupport.Exists(t, f.opts.CacheDirPath) {
				t.Fatal("cache must be left alone when the launch aborts")
			}
		})
	}
}

func TestFailFastAbortsOnPreprocessFailure(t *testing.T) {
	f := newFixture(t)
	f.opts.FailFast = true
	f.runner.statuses["preprocess"] = procexec.ExitStatus{Code: 2}
	testsupport.MakeDir(t, f.opts.CacheDirPath)

	result, err := f.launcher(t).Run(context.Background())
	var preErr *launcher.PreprocessError
	if !errors.As(err, &preErr) {
		t.Fatalf("expected PreprocessError, got %v", err)
	}
	if preErr.ExitCode() != 2 {
		t.Fatalf("unexpected exit code: %d", preErr.ExitCode())
	}
	f.requireCalls(t, "preprocess")
	if result.Launched {
		t.Fatal("app must not launch after fail-fast preprocessing failure")
	}
	if !testsupport.Exists(t, f.opts.CacheDirPath) {
		t.Fatal("cache must be left alone when the launch aborts")
	}
}

func TestForcePreprocessRunsWhenArtifactPresent(t *testing.T) {
	f := newFixture(t)
	f.opts.ForcePreprocess = true
	testsupport.WriteFile(t, f.opts.PreprocessedDataPath, "PAR1")

	if _, err := f.launcher(t).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	f.requireCalls(t, "preprocess", "delete-cache", "app")
}

func TestSkipCacheClear(t *testing.T) {
	f := newFixture(t)
	f.opts.SkipCacheClear = true
	testsupport.WriteFile(t, f.opts.PreprocessedDataPath, "PAR1")
	testsupport.MakeDir(t, f.opts.CacheDirPath)

	if _, err := f.launcher(t).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	f.requireCalls(t, "app")
	if !testsupport.Exists(t, f.opts.CacheDirPath) {
		t.Fatal("cache should be kept")
	}
}

func TestExtraCacheDirsAreCleared(t *testing.T) {
	f := newFixture(t)
	extra := filepath.Join(t.TempDir(), "home-cache")
	f.opts.ExtraCacheDirs = []string{extra}
	testsupport.WriteFile(t, f.opts.PreprocessedDataPath, "PAR1")
	testsupport.MakeDir(t, extra)

	result, err := f.launcher(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f.requireCalls(t, "delete-cache", "delete-cache", "app")
	if testsupport.Exists(t, extra) || len(result.CacheCleared) != 2 {
		t.Fatalf("expected extra cache to be cleared: %+v", result.CacheCleared)
	}
}

func TestCacheClearErrorsAreSwallowed(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteFile(t, f.opts.PreprocessedDataPath, "PAR1")
	l, err := launcher.New(f.opts, f.runner, logging.NewNop(),
		launcher.WithCacheClearer(func(path string) cachedir.Result {
			f.rec.add("delete-cache")
			return cachedir.Result{Path: path, Existed: true, Err: errors.New("permission denied")}
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("cache errors must not surface, got %v", err)
	}
	f.requireCalls(t, "delete-cache", "app")
}

func TestAppNonZeroExitIsExitError(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteFile(t, f.opts.PreprocessedDataPath, "PAR1")
	f.runner.statuses["app"] = procexec.ExitStatus{Code: -1, Signal: "SIGINT"}

	result, err := f.launcher(t).Run(context.Background())
	var exitErr *launcher.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.ExitCode() != 130 {
		t.Fatalf("expected shell code 130, got %d", exitErr.ExitCode())
	}
	if result.App.Signal != "SIGINT" {
		t.Fatalf("expected app status in result, got %+v", result.App)
	}
}

func TestAppStartFailureIsLaunchError(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteFile(t, f.opts.PreprocessedDataPath, "PAR1")
	f.runner.errs["app"] = errors.New("exec: \"streamlit\": executable file not found in $PATH")

	_, err := f.launcher(t).Run(context.Background())
	var launchErr *launcher.LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	if launchErr.ExitCode() != procexec.ExitCodeNotFound {
		t.Fatalf("unexpected exit code: %d", launchErr.ExitCode())
	}
	f.requireCalls(t, "delete-cache", "app")
}

func TestLockPreventsConcurrentLaunch(t *testing.T) {
	f := newFixture(t)
	held := flock.New(f.opts.LockPath)
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-acquire lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock() //nolint:errcheck

	_, err = f.launcher(t).Run(context.Background())
	if !errors.Is(err, launcher.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	f.requireCalls(t)
	if len(f.phases) != 0 {
		t.Fatalf("no phase may start while locked, got %v", f.phases)
	}
}

func TestPreprocessCommand(t *testing.T) {
	f := newFixture(t)
	f.runner.statuses["preprocess"] = procexec.ExitStatus{Code: 4}

	status, err := f.launcher(t).Preprocess(context.Background())
	var preErr *launcher.PreprocessError
	if !errors.As(err, &preErr) || status.Code != 4 {
		t.Fatalf("expected failing preprocess status, got %+v err=%v", status, err)
	}
	f.requireCalls(t, "preprocess")
}

func TestNewValidatesInputs(t *testing.T) {
	f := newFixture(t)
	if _, err := launcher.New(f.opts, nil, nil); err == nil {
		t.Fatal("expected error for nil runner")
	}
	opts := f.opts
	opts.App.Command = ""
	if _, err := launcher.New(opts, f.runner, nil); err == nil {
		t.Fatal("expected error for missing app command")
	}
}

func TestPhasesAreTaggedInLogs(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l, err := launcher.New(f.opts, f.runner, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := buf.String()
	for _, phase := range []launcher.Phase{launcher.PhaseCheck, launcher.PhasePreprocess, launcher.PhaseClearCache, launcher.PhaseLaunch, launcher.PhaseDone} {
		if !strings.Contains(out, `"`+logging.FieldPhase+`":"`+string(phase)+`"`) {
			t.Errorf("missing log line for phase %q in:\n%s", phase, out)
		}
	}
	if !strings.Contains(out, `"dirs":[`) {
		t.Errorf("expected cache directories in logs:\n%s", out)
	}
}
