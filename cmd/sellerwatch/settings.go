package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change monitoring settings",
	}
	cmd.AddCommand(newSettingsShowCommand(ctx))
	cmd.AddCommand(newSettingsSetCommand(ctx))
	return cmd
}

func newSettingsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			settings, err := a.monitor.Settings(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, settings)
			}
			printTable(cmd,
				[]string{"Setting", "Value"},
				[][]string{
					{"Vinyl only", strconv.FormatBool(settings.VinylOnly)},
					{"Full scan interval (days)", strconv.Itoa(settings.FullScanIntervalDays)},
					{"Quick check interval (hours)", strconv.Itoa(settings.QuickCheckIntervalHours)},
					{"Notify on new match", strconv.FormatBool(settings.NotifyOnNewMatch)},
				},
				nil,
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var (
		vinylOnly  bool
		fullDays   int
		quickHours int
		notify     bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings; unspecified flags keep their value",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			settings, err := a.monitor.Settings(cmd.Context())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("vinyl-only") {
				settings.VinylOnly = vinylOnly
			}
			if flags.Changed("full-days") {
				settings.FullScanIntervalDays = fullDays
			}
			if flags.Changed("quick-hours") {
				settings.QuickCheckIntervalHours = quickHours
			}
			if flags.Changed("notify") {
				settings.NotifyOnNewMatch = notify
			}
			if err := a.monitor.UpdateSettings(cmd.Context(), settings); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Settings saved")
			return nil
		},
	}
	cmd.Flags().BoolVar(&vinylOnly, "vinyl-only", false, "Only match vinyl listings")
	cmd.Flags().IntVar(&fullDays, "full-days", 0, "Days between full inventory scans")
	cmd.Flags().IntVar(&quickHours, "quick-hours", 0, "Hours between quick checks")
	cmd.Flags().BoolVar(&notify, "notify", false, "Flag new matches for notification")
	return cmd
}
