package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/netdout/relay/internal/daemon"
	"github.com/netdout/relay/internal/router"
	"github.com/netdout/relay/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// errIntentFailed marks a command whose intent settled with ok=false.
var errIntentFailed = errors.New("intent failed")

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "queue <url> [output]",
		Short: "Queue a download on the daemon",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.JobRequest{URL: args[0]}
			if len(args) == 2 {
				req.Output = args[1]
			}

			return ctx.withRouter(cmd, func(runCtx context.Context, rt *router.Router) error {
				reply, _ := rt.Dispatch(runCtx, router.QueueIntent{Request: req})

				result, err := router.Await(runCtx, reply)
				if err != nil {
					return err
				}

				if jsonOutput {
					if err := writeJSON(cmd, result); err != nil {
						return err
					}
				}

				if !result.OK {
					return fmt.Errorf("%w: %s", errIntentFailed, result.Error)
				}

				if jsonOutput {
					return nil
				}

				if id, ok := daemon.HandleFromPayload(result.Data); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Queued: %s\n", result.Data)
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw reply as JSON")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <id>...",
		Short: "Show the daemon's view of one or more jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRouter(cmd, func(runCtx context.Context, rt *router.Router) error {
				results := make([]router.Result, len(args))

				g, gctx := errgroup.WithContext(runCtx)
				for i, id := range args {
					g.Go(func() error {
						reply, _ := rt.Dispatch(gctx, router.StatusIntent{ID: daemon.JobHandle(id)})

						result, err := router.Await(gctx, reply)
						if err != nil {
							return err
						}

						results[i] = result

						return nil
					})
				}

				if err := g.Wait(); err != nil {
					return err
				}

				if jsonOutput {
					if err := writeJSON(cmd, results); err != nil {
						return err
					}
				} else {
					renderStatuses(cmd, args, results)
				}

				var failed int
				for _, result := range results {
					if !result.OK {
						failed++
					}
				}

				if failed > 0 {
					return fmt.Errorf("%w: %d of %d status queries failed", errIntentFailed, failed, len(results))
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw replies as JSON")
	return cmd
}

func renderStatuses(cmd *cobra.Command, ids []string, results []router.Result) {
	rows := make([][]string, 0, len(results))

	for i, result := range results {
		if !result.OK {
			rows = append(rows, []string{ids[i], "error", "", result.Error})

			continue
		}

		info, err := daemon.ParseJobInfo(result.Data)
		if err != nil {
			rows = append(rows, []string{ids[i], "unknown", "", string(result.Data)})

			continue
		}

		state := info.State
		if state == "" {
			state = "unknown"
		}

		rows = append(rows, []string{ids[i], state, formatProgress(info), info.Reason})
	}

	renderTable(cmd.OutOrStdout(), []string{"ID", "State", "Progress", "Detail"}, rows, 3)
}

func formatProgress(info daemon.JobInfo) string {
	downloaded := humanize.IBytes(info.DownloadedBytes)
	if info.TotalBytes == nil || *info.TotalBytes == 0 {
		return downloaded
	}

	percent := float64(info.DownloadedBytes) / float64(*info.TotalBytes) * 100

	return fmt.Sprintf("%s / %s (%.1f%%)", downloaded, humanize.IBytes(*info.TotalBytes), percent)
}

// withRouter runs fn with an in-process router backed by the configured
// daemon client. One-shot commands do not export metrics.
func (c *commandContext) withRouter(cmd *cobra.Command, fn func(context.Context, *router.Router) error) error {
	runCtx := c.withLogger(cmd.Context(), cmd.ErrOrStderr(), true)

	rl, err := c.buildRelay(&telemetry.Telemetry{})
	if err != nil {
		return err
	}
	defer rl.close()

	return fn(runCtx, rl.router())
}
