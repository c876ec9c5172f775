package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newWishlistCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wishlist",
		Short: "Show or replace the wished master ids",
	}
	cmd.AddCommand(newWishlistShowCommand(ctx))
	cmd.AddCommand(newWishlistSetCommand(ctx))
	return cmd
}

func newWishlistShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print wished master ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := a.wishlist.MasterIDs(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, ids)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newWishlistSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <master-id>...",
		Short: "Replace the stored wishlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := strconv.Atoi(arg)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid master id %q", arg)
				}
				ids = append(ids, id)
			}
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			if a.cfg.WantlistUser != "" {
				return fmt.Errorf("wishlist is read from the Discogs wantlist of %s", a.cfg.WantlistUser)
			}
			if err := a.manual.Replace(cmd.Context(), ids); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wishlist holds %s masters\n", formatCount(len(ids)))
			return nil
		},
	}
}
