package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/sellerwatch/models"
)

func newMatchesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Inspect and update wishlist matches",
	}
	cmd.AddCommand(newMatchesListCommand(ctx))
	cmd.AddCommand(newMatchesSeenCommand(ctx))
	cmd.AddCommand(newMatchesPruneCommand(ctx))
	return cmd
}

func newMatchesListCommand(ctx *commandContext) *cobra.Command {
	var seller, status string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List matches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			var matches []models.SellerMatch
			if seller != "" {
				matches, err = a.monitor.MatchesBySeller(cmd.Context(), seller)
			} else {
				matches, err = a.monitor.AllMatches(cmd.Context())
			}
			if err != nil {
				return err
			}
			matches = filterByStatus(matches, status)
			if asJSON {
				return writeJSON(cmd, matches)
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
				return nil
			}
			rows := make([][]string, 0, len(matches))
			for _, m := range matches {
				state := string(m.Status)
				if m.StatusConfidence != "" {
					state += " (" + string(m.StatusConfidence) + ")"
				}
				rows = append(rows, []string{
					m.ID,
					m.SellerID,
					m.Artist + " - " + m.Title,
					strings.Join(m.Format, ", "),
					m.Condition,
					formatPrice(m.Price, m.Currency),
					state,
					formatTime(&m.DateFound),
				})
			}
			printTable(cmd,
				[]string{"ID", "Seller", "Release", "Format", "Condition", "Price", "Status", "Found"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&seller, "seller", "", "Only matches of this seller")
	cmd.Flags().StringVar(&status, "status", "", "Only matches in this status (active, seen, sold)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func filterByStatus(matches []models.SellerMatch, status string) []models.SellerMatch {
	if status == "" {
		return matches
	}
	out := make([]models.SellerMatch, 0, len(matches))
	for _, m := range matches {
		if strings.EqualFold(string(m.Status), status) {
			out = append(out, m)
		}
	}
	return out
}

func newMatchesSeenCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "seen [id...]",
		Short: "Mark matches as seen",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("pass match ids or --all")
			}
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			if all {
				n, err := a.monitor.MarkAllSeen(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %s matches seen\n", formatCount(n))
				return nil
			}
			for _, id := range args {
				if err := a.monitor.MarkSeen(cmd.Context(), id); err != nil {
					return fmt.Errorf("mark %s: %w", id, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s matches seen\n", formatCount(len(args)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Mark every active match as seen")
	return cmd
}

func newMatchesPruneCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sold matches older than the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return fmt.Errorf("--older-than-days cannot be negative")
			}
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.monitor.PruneSold(cmd.Context(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s sold matches\n", formatCount(n))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "older-than-days", 30, "Minimum age in days of sold matches to delete")
	return cmd
}
