package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSellersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sellers",
		Short: "Manage monitored sellers",
	}
	cmd.AddCommand(newSellersListCommand(ctx))
	cmd.AddCommand(newSellersAddCommand(ctx))
	cmd.AddCommand(newSellersRemoveCommand(ctx))
	return cmd
}

func newSellersListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monitored sellers",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			sellers, err := a.monitor.Sellers(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, sellers)
			}
			if len(sellers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sellers monitored.")
				return nil
			}
			rows := make([][]string, 0, len(sellers))
			for _, s := range sellers {
				rows = append(rows, []string{
					s.Username,
					s.DisplayName,
					formatOptionalInt(s.InventorySize),
					formatOptionalInt(s.MatchCount),
					formatTime(s.LastScanned),
					formatTime(s.LastQuickCheck),
				})
			}
			printTable(cmd,
				[]string{"Seller", "Name", "Inventory", "Matches", "Last full scan", "Last check"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newSellersAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <username>...",
		Short: "Add sellers to the watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			for _, username := range args {
				seller, err := a.monitor.AddSeller(cmd.Context(), username)
				if err != nil {
					return fmt.Errorf("add %s: %w", username, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", seller.Username, seller.DisplayName)
			}
			return nil
		},
	}
}

func newSellersRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <username>...",
		Short: "Remove sellers with their matches and cached inventory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			for _, username := range args {
				if err := a.monitor.RemoveSeller(cmd.Context(), username); err != nil {
					return fmt.Errorf("remove %s: %w", username, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", username)
			}
			return nil
		},
	}
}
