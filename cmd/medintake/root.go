package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "medintake",
		Short:         "Batch intake pipeline for scanned medical documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newSessionCommand(ctx))
	rootCmd.AddCommand(newReviewCommand(ctx))
	rootCmd.AddCommand(newPatientCommand(ctx))
	rootCmd.AddCommand(newHealthCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
