package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/sellerwatch/models"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan every monitored seller once and wait for the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if err := ctx.acquireLock(cfg); err != nil {
				return err
			}
			a, err := ctx.open(runCtx)
			if err != nil {
				return err
			}

			started := a.monitor.StartScan(force)
			if started.Status == models.ScanError {
				return fmt.Errorf("scan failed to start: %s", started.Error)
			}

			done := make(chan struct{})
			go func() {
				a.monitor.Wait()
				close(done)
			}()

			showProgress := !asJSON && isTerminal(cmd.ErrOrStderr())
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
		wait:
			for {
				select {
				case <-done:
					break wait
				case <-ticker.C:
					if showProgress {
						printProgress(cmd, a.monitor.ScanStatus())
					}
				}
			}

			status := a.monitor.ScanStatus()
			if asJSON {
				if err := writeJSON(cmd, status); err != nil {
					return err
				}
			} else {
				printStatus(cmd, status)
			}
			if status.Status == models.ScanError {
				return fmt.Errorf("scan finished with error: %s", status.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Force a full fetch of every seller")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final status as JSON")
	return cmd
}

func printProgress(cmd *cobra.Command, s models.SellerScanStatus) {
	line := fmt.Sprintf("%s %d/%d sellers", s.Status, s.SellersScanned, s.TotalSellers)
	if s.CurrentSeller != "" {
		line += " (" + s.CurrentSeller + ")"
	}
	if s.Progress != nil {
		line += fmt.Sprintf(" items %s/%s", formatCount(s.Progress.ItemsProcessed), formatCount(s.Progress.TotalItems))
	}
	fmt.Fprintln(cmd.ErrOrStderr(), line)
}

func printStatus(cmd *cobra.Command, s models.SellerScanStatus) {
	rows := [][]string{
		{"Scan", s.ScanID},
		{"Status", string(s.Status)},
		{"Sellers", fmt.Sprintf("%d/%d", s.SellersScanned, s.TotalSellers)},
		{"New matches", formatCount(s.NewMatches)},
		{"Started", formatTime(s.LastScanStarted)},
		{"Completed", formatTime(s.LastScanCompleted)},
	}
	if s.Error != "" {
		rows = append(rows, []string{"Error", s.Error})
	}
	printTable(cmd, []string{"Field", "Value"}, rows, nil)
}
