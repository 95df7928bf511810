package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stormview/internal/cachedir"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Streamlit cache directories",
	}
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the configured cache directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, res := range cachedir.ClearAll(cfg.CacheDirs()...) {
				kind, message := describeCacheResult(res)
				fmt.Fprintln(out, renderStatusLine("Cache", kind, message, colorize))
			}
			return nil
		},
	}
}

func describeCacheResult(res cachedir.Result) (statusKind, string) {
	switch {
	case res.Err != nil:
		return statusWarn, fmt.Sprintf("Could not clear cache %s: %v", res.Path, res.Err)
	case res.Removed:
		return statusOK, "Cleared cache directory " + res.Path
	default:
		return statusInfo, "No cache directory found at " + res.Path
	}
}
