package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/netdout/relay/internal/config"
	"github.com/netdout/relay/internal/http/rest"
	"github.com/netdout/relay/internal/interest"
	"github.com/netdout/relay/internal/logctx"
	"github.com/netdout/relay/internal/notifier"
	"github.com/netdout/relay/internal/router"
	"github.com/netdout/relay/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the intent API for UI surfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runCtx := ctx.withLogger(sigCtx, cmd.OutOrStdout(), false)

			err := runServe(runCtx, ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		},
	}
}

func runServe(ctx context.Context, cc *commandContext) error {
	cfg := cc.config
	logger := logctx.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "netdout relay starting...", "version", version, "log_level", cfg.LogLevel)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Settings and Daemon Client
	rl, err := cc.buildRelay(tel)
	if err != nil {
		return err
	}
	defer rl.close()

	// =========================================================================
	// Start Router
	opts := []router.Option{router.WithTelemetry(tel)}

	if cfg.DiscordWebhookURL != "" {
		opts = append(opts, router.WithObserver(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)))
	}

	handler := rest.NewRelayHandler(
		rl.router(opts...),
		interest.NewFilter(cfg.InterestExtensions...),
		rl.endpoints,
		tel,
	)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, cfg, handler, tel)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(ctx, "Initializing API support",
			"host", cfg.Web.BindAddress,
			"daemon_url", rl.endpoints.Endpoint(ctx),
		)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.InfoContext(ctx, "start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(ctx, "failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// setupServer mounts the relay routes. Access logs are written inside the
// request span so they carry its trace id.
func setupServer(ctx context.Context, cfg *config.Config, handler *rest.RelayHandler, tel *telemetry.Telemetry) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)

	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
