package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stormview/internal/launcher"
	"stormview/internal/procexec"
)

func newPreprocessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess",
		Short: "Run the preprocessing step now, whether or not the data exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.loggerFor(cmd)
			opts := launcher.OptionsFromConfig(cfg)
			l, err := launcher.New(opts, procexec.NewRunner(logger, cfg.StopGrace()), logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Preprocess", statusInfo, opts.Preprocess.CommandLine(), colorize))
			status, err := l.Preprocess(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Preprocess", statusError, status.String(), colorize))
				return err
			}
			fmt.Fprintln(out, renderStatusLine("Preprocess", exitStatusKind(status),
				fmt.Sprintf("%s in %s", status, status.Duration.Round(10*time.Millisecond)), colorize))
			return nil
		},
	}
}
