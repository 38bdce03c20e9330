package main

import (
	"fmt"

	"github.com/netdout/relay/internal/telemetry"
	"github.com/spf13/cobra"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the daemon is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := ctx.buildRelay(&telemetry.Telemetry{})
			if err != nil {
				return err
			}
			defer rl.close()

			runCtx := ctx.withLogger(cmd.Context(), cmd.ErrOrStderr(), true)
			endpoint := rl.endpoints.Endpoint(runCtx)
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Daemon URL: %s\n", endpoint)

			if err := rl.client.Health(runCtx); err != nil {
				fmt.Fprintln(out, "Daemon:     unreachable")
				return fmt.Errorf("daemon health check failed: %w", err)
			}

			fmt.Fprintln(out, "Daemon:     ok")
			return nil
		},
	}
}
