package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var ephemeral bool
	var verbose bool

	ctx := newCommandContext(&ephemeral, &verbose)

	rootCmd := &cobra.Command{
		Use:           "netdout_relay",
		Short:         "Relay download requests to the netdout daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep settings in memory instead of the database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))

	return rootCmd
}
