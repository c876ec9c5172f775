package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/sellerwatch/pipeline"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format, output, status string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write matches to CSV and/or JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			a, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			if format == "" {
				format = a.cfg.ExportFormat
			}
			if output == "" {
				output = filepath.Join(a.cfg.DataDir, "export", "matches")
			}
			matches, err := a.monitor.AllMatches(cmd.Context())
			if err != nil {
				return err
			}
			matches = filterByStatus(matches, status)

			writer, err := pipeline.NewWriter(format, output)
			if err != nil {
				return err
			}
			written, err := pipeline.Export(cmd.Context(), a.cfg, writer, matches)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s of %s matches to %s\n",
				formatCount(int(written)), formatCount(len(matches)), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "csv, json or dual (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path without extension")
	cmd.Flags().StringVar(&status, "status", "", "Only export matches in this status")
	return cmd
}
