package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/netdout/relay/internal/settings"
	"github.com/netdout/relay/internal/telemetry"
	"github.com/spf13/cobra"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change relay settings",
	}

	configCmd.AddCommand(newConfigGetCommand(ctx))
	configCmd.AddCommand(newConfigSetCommand(ctx))
	configCmd.AddCommand(newConfigListCommand(ctx))

	return configCmd
}

func newConfigGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the daemon URL the relay will use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := ctx.buildRelay(&telemetry.Telemetry{})
			if err != nil {
				return err
			}
			defer rl.close()

			runCtx := ctx.withLogger(cmd.Context(), cmd.ErrOrStderr(), true)

			fmt.Fprintln(cmd.OutOrStdout(), rl.endpoints.Endpoint(runCtx))
			return nil
		},
	}
}

func newConfigSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <daemon-url>",
		Short: "Persist the daemon URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := strings.TrimSpace(args[0])

			u, err := url.Parse(value)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("invalid daemon url %q: expected something like %s", value, settings.DefaultDaemonURL)
			}

			rl, err := ctx.buildRelay(&telemetry.Telemetry{})
			if err != nil {
				return err
			}
			defer rl.close()

			runCtx := ctx.withLogger(cmd.Context(), cmd.ErrOrStderr(), true)

			if err := rl.endpoints.Set(runCtx, value); err != nil {
				return fmt.Errorf("failed to save daemon url: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", settings.DaemonURLKey, value)
			return nil
		},
	}
}

func newConfigListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := ctx.buildRelay(&telemetry.Telemetry{})
			if err != nil {
				return err
			}
			defer rl.close()

			if rl.repo == nil {
				return errors.New("nothing is persisted with --ephemeral")
			}

			records, err := rl.repo.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list settings: %w", err)
			}

			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No settings persisted; using %s\n", rl.endpoints.Default())
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{r.Key, r.Value, humanize.RelTime(r.UpdatedAt, time.Now(), "ago", "from now")})
			}

			renderTable(cmd.OutOrStdout(), []string{"Key", "Value", "Updated"}, rows)
			return nil
		},
	}
}
