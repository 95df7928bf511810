package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"stormview/internal/config"
	"stormview/internal/launcher"
	"stormview/internal/logging"
	"stormview/internal/procexec"
	"stormview/internal/runlog"
)

type runOptions struct {
	policy          string
	forcePreprocess bool
	skipCacheClear  bool
	noHistory       bool
}

func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	flags := cmd.Flags()
	flags.StringVar(&opts.policy, "policy", "", "Preprocessing failure policy: best_effort or fail_fast (overrides config)")
	flags.BoolVar(&opts.forcePreprocess, "force-preprocess", false, "Run preprocessing even when the data artifact exists")
	flags.BoolVar(&opts.skipCacheClear, "skip-cache-clear", false, "Leave the Streamlit cache in place")
	flags.BoolVar(&opts.noHistory, "no-history", false, "Do not record this launch in the run history")
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prepare data, clear the cache, and run the app in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd, ctx, opts)
		},
	}
	bindRunFlags(cmd, &opts)
	return cmd
}

func runLaunch(cmd *cobra.Command, ctx *commandContext, opts runOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if opts.policy != "" {
		policy := config.NormalizePolicy(opts.policy)
		if policy != config.PolicyBestEffort && policy != config.PolicyFailFast {
			return fmt.Errorf("--policy: unsupported value %q (want %s or %s)", opts.policy, config.PolicyBestEffort, config.PolicyFailFast)
		}
		cfg.Preprocess.Policy = policy
	}

	logger := ctx.loggerFor(cmd)
	launchOpts := launcher.OptionsFromConfig(cfg)
	launchOpts.ForcePreprocess = opts.forcePreprocess
	launchOpts.SkipCacheClear = opts.skipCacheClear

	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}

	var recorder *runRecorder
	if cfg.RunHistory.Enabled && !opts.noHistory {
		recorder = startRunRecorder(runCtx, cfg, logger)
		if recorder != nil {
			logger = logger.With(logging.String(logging.FieldRunID, recorder.run.ID))
			recorder.logger = logger
		}
	}

	out := cmd.OutOrStdout()
	runner := procexec.NewRunner(logger, cfg.StopGrace())
	l, err := launcher.New(launchOpts, runner, logger, launcher.WithObserver(newPhasePrinter(out)))
	if err != nil {
		if recorder != nil {
			recorder.finish(launcher.Result{}, err)
		}
		return err
	}

	result, runErr := l.Run(runCtx)
	if recorder != nil {
		recorder.finish(result, runErr)
	}

	if runErr == nil {
		fmt.Fprintln(out, renderStatusLine("Result", statusOK, "application exited cleanly", shouldColorize(out)))
		return nil
	}
	if errors.Is(runErr, launcher.ErrLocked) {
		logging.WarnWithContext(logger, "launch refused", "launch_locked",
			logging.String("lock", cfg.Paths.LockFile),
			logging.String(logging.FieldErrorHint, "stop the other launcher or remove a stale lock file"),
		)
	}
	return runErr
}

// runRecorder writes one launch to the run history. Ledger failures are logged
// and never affect the launch itself.
type runRecorder struct {
	store  *runlog.Store
	run    runlog.Run
	keep   int
	logger *slog.Logger
}

func startRunRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) *runRecorder {
	store, err := runlog.Open(cfg.RunHistoryPath())
	if err != nil {
		logging.WarnWithContext(logger, "run history unavailable", "run_history_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this launch will not appear in `stormview history`"),
		)
		return nil
	}
	run, err := store.Begin(ctx, cfg.Paths.ProjectDir, cfg.Preprocess.Policy)
	if err != nil {
		logging.WarnWithContext(logger, "failed to record launch", "run_history_write_failed", logging.Error(err))
		_ = store.Close()
		return nil
	}
	logger.Debug("recording launch", logging.String(logging.FieldRunID, run.ID), logging.String("db", store.Path()))
	return &runRecorder{store: store, run: run, keep: cfg.RunHistory.Keep, logger: logger}
}

func (r *runRecorder) finish(result launcher.Result, runErr error) {
	defer r.store.Close()

	// The launch context may already be cancelled by a signal; the ledger
	// update should still land.
	ctx := context.Background()
	if err := r.store.Finish(ctx, r.run.ID, completionFor(result, runErr)); err != nil {
		logging.WarnWithContext(r.logger, "failed to record launch result", "run_history_write_failed", logging.Error(err))
		return
	}
	if removed, err := r.store.Prune(ctx, r.keep); err != nil {
		r.logger.Warn("failed to prune run history", logging.Error(err))
	} else if removed > 0 {
		r.logger.Debug("pruned run history", logging.Int("removed", int(removed)))
	}
}

func completionFor(result launcher.Result, runErr error) runlog.Completion {
	c := runlog.Completion{
		FinishedAt:   result.Finished,
		Preprocessed: result.Preprocessed,
		Err:          runErr,
	}
	if result.Preprocess != nil {
		c.PreprocessStatus = result.Preprocess.String()
	}

	var launchErr *launcher.LaunchError
	switch {
	case !result.Launched:
		c.Outcome = runlog.OutcomeAborted
	case errors.As(runErr, &launchErr):
		c.Outcome = runlog.OutcomeAborted
		c.AppStatus = "not started"
		code := launchErr.ExitCode()
		c.ExitCode = &code
	default:
		c.AppStatus = result.App.String()
		code := result.App.ShellCode()
		c.ExitCode = &code
		if result.App.Success() {
			c.Outcome = runlog.OutcomeOK
		} else {
			c.Outcome = runlog.OutcomeAppExit
		}
	}
	return c
}

// exitStatusKind classifies an exit status for display.
func exitStatusKind(status procexec.ExitStatus) statusKind {
	if status.Success() {
		return statusOK
	}
	return statusError
}
