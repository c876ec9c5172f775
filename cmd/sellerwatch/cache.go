package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the release to master cache",
	}
	cmd.AddCommand(newCacheStatsCommand(ctx))
	cmd.AddCommand(newCacheRefreshCommand(ctx))
	cmd.AddCommand(newCacheClearCommand(ctx))
	return cmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			stats := a.cache.Stats(cmd.Context())
			if asJSON {
				return writeJSON(cmd, stats)
			}
			updated := "never"
			if !stats.LastUpdated.IsZero() {
				updated = formatTime(&stats.LastUpdated)
			}
			printTable(cmd,
				[]string{"Releases", "Masters", "Stale masters", "Last updated"},
				[][]string{{
					formatCount(stats.Releases),
					formatCount(stats.Masters),
					formatCount(stats.StaleMasters),
					updated,
				}},
				[]columnAlignment{alignRight, alignRight, alignRight},
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newCacheRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch release lists for stale or missing wishlist masters",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if err := ctx.acquireLock(cfg); err != nil {
				return err
			}
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := a.wishlist.MasterIDs(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Wishlist is empty; nothing to refresh.")
				return nil
			}
			result, err := a.cache.Refresh(cmd.Context(), ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %s masters, %s fresh, %s failed\n",
				formatCount(result.Fetched), formatCount(result.Skipped), formatCount(result.Failed))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached release mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Release cache cleared")
			return nil
		},
	}
}
