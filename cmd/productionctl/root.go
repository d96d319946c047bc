package main

import (
	"github.com/spf13/cobra"
)

// cliOptions are the flags shared by every subcommand
type cliOptions struct {
	json bool
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "productionctl",
		Short:         "Inspect the production pipeline and worker rankings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newStagesCommand(opts))
	rootCmd.AddCommand(newRankCommand(opts))
	rootCmd.AddCommand(newPipelineCommand(opts))
	rootCmd.AddCommand(newMigrateCommand())

	return rootCmd
}
