package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stormview/internal/deps"
	"stormview/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check commands, directories, and entry scripts needed to launch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("Commands", colorize))
			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			for _, line := range dependencyLines(statuses, colorize) {
				fmt.Fprintln(out, line)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Filesystem", colorize))
			checks := preflight.RunAll(cfg)
			for _, r := range checks {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			missing := deps.Missing(statuses)
			failed := preflight.Failed(checks)
			if len(missing) > 0 || len(failed) > 0 {
				return fmt.Errorf("doctor found %d missing command(s) and %d failed check(s)", len(missing), len(failed))
			}
			return nil
		},
	}
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, s := range statuses {
		switch {
		case s.Available:
			lines = append(lines, renderStatusLine(s.Name, statusOK, s.Path, colorize))
		case s.Optional:
			lines = append(lines, renderStatusLine(s.Name, statusWarn, s.Detail+" (optional: "+s.Description+")", colorize))
		default:
			lines = append(lines, renderStatusLine(s.Name, statusError, s.Detail, colorize))
		}
	}
	return lines
}
