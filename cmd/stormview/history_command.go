package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"stormview/internal/runlog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent launches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runs, err := recentRuns(cmd.Context(), cfg, limit)
			if err != nil {
				return fmt.Errorf("read run history: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No launches recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable("", []tableColumn{
				{Header: "ID"},
				{Header: "Started"},
				{Header: "Preprocessed"},
				{Header: "Preprocess"},
				{Header: "App"},
				{Header: "Outcome"},
				{Header: "Duration", AlignRight: true},
			}, historyRows(runs)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of launches to show")
	return cmd
}

func historyRows(runs []runlog.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		app := orDash(run.AppStatus)
		if run.ExitCode != nil && run.AppStatus == "" {
			app = strconv.Itoa(*run.ExitCode)
		}
		duration := "-"
		if d := run.Duration(); d > 0 {
			duration = d.Round(time.Second).String()
		}
		rows = append(rows, []string{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			yesNo(run.Preprocessed),
			orDash(run.PreprocessStatus),
			app,
			string(run.Outcome),
			duration,
		})
	}
	return rows
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
