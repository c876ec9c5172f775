package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "sellerwatch",
		Short:         "Watch marketplace sellers for wantlist releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.envFile, "env-file", "", "Environment file to load (default .env)")
	flags.StringVar(&ctx.dataDir, "data-dir", "", "Data directory for file and sqlite storage")
	flags.StringVar(&ctx.storage, "storage", "", "Storage backend: file, sqlite, mysql, postgres, redis or memory")
	flags.BoolVarP(&ctx.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newSellersCommand(ctx))
	rootCmd.AddCommand(newMatchesCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newSettingsCommand(ctx))
	rootCmd.AddCommand(newWishlistCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))

	return rootCmd
}
