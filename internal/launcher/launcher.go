package launcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"stormview/internal/cachedir"
	"stormview/internal/config"
	"stormview/internal/logging"
	"stormview/internal/procexec"
)

// Phase names a step of the launch sequence.
type Phase string

const (
	PhaseCheck      Phase = "check"
	PhasePreprocess Phase = "preprocess"
	PhaseClearCache Phase = "clear_cache"
	PhaseLaunch     Phase = "launch"
	PhaseDone       Phase = "done"
)

// ProcessRunner executes an external program and blocks until it exits.
// A non-nil error means the program could not be started.
type ProcessRunner interface {
	Run(ctx context.Context, spec procexec.Spec) (procexec.ExitStatus, error)
}

// CacheClearer removes a cache directory and reports the outcome.
type CacheClearer func(path string) cachedir.Result

// Observer receives a human-readable status line before each phase.
type Observer interface {
	Phase(phase Phase, message string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Phase, string)

func (f ObserverFunc) Phase(phase Phase, message string) { f(phase, message) }

// Options configures one launcher.
type Options struct {
	PreprocessedDataPath string
	CacheDirPath         string
	ExtraCacheDirs       []string
	Preprocess           procexec.Spec
	App                  procexec.Spec
	FailFast             bool
	// LockPath enables a single-instance lock when non-empty.
	LockPath string
	// ForcePreprocess runs preprocessing even when the artifact exists.
	ForcePreprocess bool
	// SkipCacheClear leaves cache directories untouched.
	SkipCacheClear bool
}

// OptionsFromConfig maps configuration onto launcher options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PreprocessedDataPath: cfg.Paths.PreprocessedData,
		CacheDirPath:         cfg.Paths.CacheDir,
		ExtraCacheDirs:       append([]string(nil), cfg.Paths.ExtraCacheDirs...),
		Preprocess: procexec.Spec{
			Name:    "preprocess",
			Command: cfg.Preprocess.Command,
			Args:    append([]string(nil), cfg.Preprocess.Args...),
			Dir:     cfg.Paths.ProjectDir,
		},
		App: procexec.Spec{
			Name:    "app",
			Command: cfg.App.Command,
			Args:    append([]string(nil), cfg.App.Args...),
			Dir:     cfg.Paths.ProjectDir,
		},
		FailFast: cfg.FailFast(),
		LockPath: cfg.Paths.LockFile,
	}
}

// Result summarizes a launch.
type Result struct {
	// Preprocessed reports whether the preprocessing program was invoked.
	Preprocessed bool
	// Preprocess holds the preprocessing exit status when it ran.
	Preprocess   *procexec.ExitStatus
	CacheCleared []cachedir.Result
	// Launched reports whether the application launch was attempted.
	Launched bool
	App      procexec.ExitStatus
	Started  time.Time
	Finished time.Time
}

// Option customizes a Launcher.
type Option func(*Launcher)

// WithCacheClearer overrides cache removal (primarily for tests).
func WithCacheClearer(fn CacheClearer) Option {
	return func(l *Launcher) {
		if fn != nil {
			l.clearCache = fn
		}
	}
}

// WithObserver registers a progress observer.
func WithObserver(obs Observer) Option {
	return func(l *Launcher) {
		if obs != nil {
			l.observer = obs
		}
	}
}

// Launcher runs the preprocess, cache reset, and launch sequence.
type Launcher struct {
	opts       Options
	runner     ProcessRunner
	clearCache CacheClearer
	observer   Observer
	logger     *slog.Logger
}

// New constructs a Launcher.
func New(opts Options, runner ProcessRunner, logger *slog.Logger, options ...Option) (*Launcher, error) {
	if runner == nil {
		return nil, errors.New("launcher requires a process runner")
	}
	if strings.TrimSpace(opts.PreprocessedDataPath) == "" {
		return nil, errors.New("launcher requires a preprocessed data path")
	}
	if strings.TrimSpace(opts.App.Command) == "" {
		return nil, errors.New("launcher requires an application command")
	}
	l := &Launcher{
		opts:       opts,
		runner:     runner,
		clearCache: cachedir.Clear,
		observer:   ObserverFunc(func(Phase, string) {}),
		logger:     logging.NewComponentLogger(logger, "launcher"),
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Run executes the launch sequence once and blocks for the application's lifetime.
func (l *Launcher) Run(ctx context.Context) (result Result, err error) {
	result.Started = time.Now()
	defer func() { result.Finished = time.Now() }()

	unlock, err := l.acquireLock()
	if err != nil {
		return result, err
	}
	defer unlock()

	l.enter(PhaseCheck, "Checking for preprocessed data at "+l.opts.PreprocessedDataPath)
	present := l.artifactPresent()
	if !present || l.opts.ForcePreprocess {
		result.Preprocessed = true
		status, perr := l.preprocess(ctx, present)
		result.Preprocess = &status
		if perr != nil {
			return result, perr
		}
	} else {
		l.logger.Info("preprocessed data present; skipping preprocessing",
			logging.String("path", l.opts.PreprocessedDataPath),
			logging.String(logging.FieldEventType, "preprocess_skipped"),
		)
	}

	if !l.opts.SkipCacheClear {
		result.CacheCleared = l.clearCaches()
	}

	l.enter(PhaseLaunch, "Starting application: "+l.opts.App.CommandLine())
	l.logger.Info("launching application",
		logging.String("command", l.opts.App.CommandLine()),
		logging.String("dir", l.opts.App.Dir),
		logging.String(logging.FieldEventType, "app_launch"),
	)
	result.Launched = true
	status, err := l.runner.Run(ctx, l.opts.App)
	result.App = status
	if err != nil {
		hint := "check app.command and the project directory permissions"
		var startErr *procexec.StartError
		if errors.As(err, &startErr) && startErr.NotFound() {
			hint = "app.command was not found; install streamlit or activate the project virtualenv"
		}
		l.logger.Error("application could not be started",
			logging.Error(err),
			logging.String(logging.FieldEventType, "app_start_failed"),
			logging.String(logging.FieldErrorHint, hint),
		)
		return result, &LaunchError{Err: err}
	}

	l.enter(PhaseDone, "Application "+status.String())
	l.logger.Info("application exited",
		logging.String("status", status.String()),
		logging.Duration("duration", status.Duration),
		logging.String(logging.FieldEventType, "app_exit"),
	)
	if !status.Success() {
		return result, &ExitError{Status: status}
	}
	return result, nil
}

// Preprocess runs the preprocessing program unconditionally under the project lock.
func (l *Launcher) Preprocess(ctx context.Context) (procexec.ExitStatus, error) {
	unlock, err := l.acquireLock()
	if err != nil {
		return procexec.ExitStatus{}, err
	}
	defer unlock()

	status, err := l.runner.Run(ctx, l.opts.Preprocess)
	if err != nil {
		return status, &PreprocessError{Status: status, Err: err}
	}
	if !status.Success() {
		return status, &PreprocessError{Status: status}
	}
	return status, nil
}

func (l *Launcher) preprocess(ctx context.Context, present bool) (procexec.ExitStatus, error) {
	message := "Preprocessed data not found. Running preprocessing: "
	if present {
		message = "Rebuilding preprocessed data: "
	}
	l.enter(PhasePreprocess, message+l.opts.Preprocess.CommandLine())
	l.logger.Info("running preprocessing",
		logging.String("command", l.opts.Preprocess.CommandLine()),
		logging.Bool("forced", present),
		logging.String(logging.FieldEventType, "preprocess_start"),
	)

	status, err := l.runner.Run(ctx, l.opts.Preprocess)
	switch {
	case err == nil && status.Success():
		l.logger.Info("preprocessing finished",
			logging.Duration("duration", status.Duration),
			logging.String(logging.FieldEventType, "preprocess_complete"),
		)
		if !l.artifactPresent() {
			logging.WarnWithContext(l.logger, "preprocessing succeeded but data artifact is still missing", "preprocess_artifact_missing",
				logging.String("path", l.opts.PreprocessedDataPath),
				logging.String(logging.FieldErrorHint, "check paths.preprocessed_data matches the preprocessing output"),
				logging.String(logging.FieldImpact, "application may fail to load data"),
			)
		}
		return status, nil
	case err == nil && status.Interrupted():
		// A shell stops its script when the foreground child dies from the
		// terminal's interrupt, whatever the policy.
		l.logger.Warn("preprocessing interrupted; aborting launch",
			logging.String("status", status.String()),
			logging.String(logging.FieldEventType, "preprocess_interrupted"),
		)
		return status, &PreprocessError{Status: status}
	case l.opts.FailFast:
		attrs := []logging.Attr{
			logging.String("status", status.String()),
			logging.String(logging.FieldEventType, "preprocess_failed"),
		}
		if err != nil {
			attrs = append(attrs, logging.Error(err))
		}
		l.logger.Error("preprocessing failed; aborting launch", logging.Args(attrs...)...)
		return status, &PreprocessError{Status: status, Err: err}
	default:
		attrs := []logging.Attr{
			logging.String("status", status.String()),
			logging.String(logging.FieldErrorHint, "run `stormview preprocess` to see the failure, or set preprocess.policy = \"fail_fast\""),
			logging.String(logging.FieldImpact, "application launches with missing or stale data"),
		}
		if err != nil {
			attrs = append(attrs, logging.Error(err))
		}
		logging.WarnWithContext(l.logger, "preprocessing failed; continuing", "preprocess_failed", attrs...)
		return status, nil
	}
}

func (l *Launcher) enter(phase Phase, message string) {
	l.observer.Phase(phase, message)
	l.logger.Debug(message, logging.String(logging.FieldPhase, string(phase)))
}

func (l *Launcher) clearCaches() []cachedir.Result {
	dirs := make([]string, 0, 1+len(l.opts.ExtraCacheDirs))
	if strings.TrimSpace(l.opts.CacheDirPath) != "" {
		dirs = append(dirs, l.opts.CacheDirPath)
	}
	dirs = append(dirs, l.opts.ExtraCacheDirs...)

	l.enter(PhaseClearCache, "Clearing cache: "+strings.Join(dirs, ", "))
	l.logger.Info("clearing cache directories",
		logging.Strings("dirs", dirs),
		logging.String(logging.FieldEventType, "cache_clear"),
	)
	results := make([]cachedir.Result, 0, len(dirs))
	for _, dir := range dirs {
		res := l.clearCache(dir)
		results = append(results, res)
		attrs := []logging.Attr{
			logging.String("path", dir),
			logging.Bool("existed", res.Existed),
			logging.Bool("removed", res.Removed),
		}
		// Removal failures never stop the launch.
		if res.Err != nil {
			attrs = append(attrs, logging.Error(res.Err))
		}
		l.logger.Debug("cache clear", logging.Args(attrs...)...)
	}
	return results
}

func (l *Launcher) artifactPresent() bool {
	info, err := os.Stat(l.opts.PreprocessedDataPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(l.logger, "cannot stat preprocessed data; treating as missing", "artifact_stat_failed",
				logging.String("path", l.opts.PreprocessedDataPath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "preprocessing will run"),
			)
		}
		return false
	}
	return info.Mode().IsRegular()
}

func (l *Launcher) acquireLock() (func(), error) {
	path := strings.TrimSpace(l.opts.LockPath)
	if path == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			l.logger.Warn("failed to release launcher lock", logging.String("lock", path), logging.Error(err))
		}
	}, nil
}
