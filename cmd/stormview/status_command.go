package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stormview/internal/artifacts"
	"stormview/internal/config"
	"stormview/internal/deps"
	"stormview/internal/runlog"
)

var numberPrinter = message.NewPrinter(language.English)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show preprocessed data, cache, dependency, and last launch state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			now := time.Now()

			fmt.Fprintln(out, renderSectionHeader("Data", colorize))
			if err := writeArtifactStatus(out, cfg, now, colorize); err != nil {
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Cache", colorize))
			for _, dir := range cfg.CacheDirs() {
				fmt.Fprintln(out, renderStatusLine("Cache", statusInfo, describeCacheDir(dir), colorize))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Dependencies", colorize))
			for _, line := range dependencyLines(deps.CheckBinaries(deps.Requirements(cfg)), colorize) {
				fmt.Fprintln(out, line)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Launches", colorize))
			writeLastLaunch(cmd.Context(), out, cfg, now, colorize)
			return nil
		},
	}
}

func writeArtifactStatus(out io.Writer, cfg *config.Config, now time.Time, colorize bool) error {
	dir := cfg.PreprocessedDir()
	list, err := artifacts.Inspect(dir, cfg.Paths.PreprocessedData)
	if err != nil {
		return fmt.Errorf("inspect preprocessed data: %w", err)
	}
	for _, a := range list {
		switch {
		case a.Present:
			detail := fmt.Sprintf("%s, modified %s", formatBytes(a.Size), formatAge(now, a.ModTime))
			fmt.Fprintln(out, renderStatusLine(a.Name, statusOK, detail, colorize))
		case a.Path == cfg.Paths.PreprocessedData:
			fmt.Fprintln(out, renderStatusLine(a.Name, statusWarn, "missing; preprocessing runs on next launch", colorize))
		default:
			fmt.Fprintln(out, renderStatusLine(a.Name, statusWarn, "missing", colorize))
		}
	}

	summary, err := artifacts.LoadSummary(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		fmt.Fprintln(out, renderStatusLine("Summary", statusWarn, err.Error(), colorize))
		return nil
	}

	fmt.Fprintln(out, renderStatusLine("Weeks", statusInfo, numberPrinter.Sprintf("%d (%s to %s)",
		summary.NWeeks, summary.DateRange.Start, summary.DateRange.End), colorize))
	fmt.Fprintln(out, renderStatusLine("Kp", statusInfo, fmt.Sprintf("mean %.2f, max %.1f",
		summary.Geomagnetic.MeanKp, summary.Geomagnetic.MaxKpOverall), colorize))
	fmt.Fprintln(out, renderStatusLine("Storm weeks", statusInfo, numberPrinter.Sprintf("%d storm / %d quiet",
		summary.StormComparison.StormWeeks, summary.StormComparison.NoStormWeeks), colorize))

	outcomes := summary.Outcomes()
	if len(outcomes) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(outcomes))
	for _, name := range outcomes {
		c := summary.StrongestCorrelations[name].Overall
		rows = append(rows, []string{name, c.Metric, c.Lag, formatFloat(c.PearsonR, "%.3f"), formatFloat(c.PearsonP, "%.2g")})
	}
	fmt.Fprintln(out, renderTable("Strongest correlations", []tableColumn{
		{Header: "Outcome"},
		{Header: "Metric"},
		{Header: "Lag"},
		{Header: "r", AlignRight: true},
		{Header: "p", AlignRight: true},
	}, rows))
	return nil
}

func describeCacheDir(dir string) string {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return "present at " + dir + " (cleared on next launch)"
	case err == nil:
		return "not a directory: " + dir
	case errors.Is(err, fs.ErrNotExist):
		return "absent at " + dir
	default:
		return fmt.Sprintf("unreadable at %s: %v", dir, err)
	}
}

func writeLastLaunch(ctx context.Context, out io.Writer, cfg *config.Config, now time.Time, colorize bool) {
	if !cfg.RunHistory.Enabled {
		fmt.Fprintln(out, renderStatusLine("History", statusInfo, "disabled", colorize))
		return
	}
	runs, err := recentRuns(ctx, cfg, 1)
	switch {
	case err != nil:
		fmt.Fprintln(out, renderStatusLine("Last launch", statusWarn, err.Error(), colorize))
	case len(runs) == 0:
		fmt.Fprintln(out, renderStatusLine("Last launch", statusInfo, "none recorded", colorize))
	default:
		run := runs[0]
		kind := statusOK
		if run.Outcome != runlog.OutcomeOK && run.Outcome != runlog.OutcomeRunning {
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine("Last launch", kind,
			fmt.Sprintf("%s %s (%s)", formatAge(now, run.StartedAt), run.Outcome, shortID(run.ID)), colorize))
	}
}

// recentRuns reads the ledger without creating it when no launch has been recorded.
func recentRuns(ctx context.Context, cfg *config.Config, limit int) ([]runlog.Run, error) {
	path := cfg.RunHistoryPath()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	store, err := runlog.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if ctx == nil {
		ctx = context.Background()
	}
	return store.Recent(ctx, limit)
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return numberPrinter.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return numberPrinter.Sprintf("%.1f %siB", float64(size)/float64(div), string("KMGTPE"[exp]))
}

func formatAge(now, then time.Time) string {
	if then.IsZero() {
		return "-"
	}
	d := now.Sub(then)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return then.Local().Format("2006-01-02")
	}
}

func formatFloat(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
