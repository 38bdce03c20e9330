package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/netdout/relay/internal/config"
	"github.com/netdout/relay/internal/daemon"
	"github.com/netdout/relay/internal/logctx"
	"github.com/netdout/relay/internal/router"
	"github.com/netdout/relay/internal/settings"
	"github.com/netdout/relay/internal/storage/sqlite"
	"github.com/netdout/relay/internal/telemetry"
)

type commandContext struct {
	ephemeral *bool
	verbose   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(ephemeral, verbose *bool) *commandContext {
	return &commandContext{
		ephemeral: ephemeral,
		verbose:   verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.LoadConfig()
	})
	return c.config, c.configErr
}

// withLogger attaches a JSON logger writing to w. One-shot commands stay quiet
// below WARN unless --verbose is set.
func (c *commandContext) withLogger(ctx context.Context, w io.Writer, oneShot bool) context.Context {
	level := c.config.SlogLevel()
	if oneShot && (c.verbose == nil || !*c.verbose) && level < slog.LevelWarn {
		level = slog.LevelWarn
	}

	return logctx.WithLogger(ctx, logctx.NewLogger(w, level))
}

// openStore returns the sqlite settings store, or a memory store with
// --ephemeral, in which case the repository is nil.
func (c *commandContext) openStore(tel *telemetry.Telemetry) (settings.Store, *sqlite.InstrumentedSettingsRepository, func() error, error) {
	if c.ephemeral != nil && *c.ephemeral {
		return settings.NewMemoryStore(), nil, func() error { return nil }, nil
	}

	db, err := sqlite.InitDB(c.config.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	repo := sqlite.NewInstrumentedSettingsRepository(db, tel)

	return repo, repo, db.Close, nil
}

// relay is the set of collaborators every command builds on.
type relay struct {
	endpoints *settings.Endpoints
	client    *daemon.InstrumentedClient
	repo      *sqlite.InstrumentedSettingsRepository
	close     func() error
}

func (c *commandContext) buildRelay(tel *telemetry.Telemetry) (*relay, error) {
	store, repo, closeStore, err := c.openStore(tel)
	if err != nil {
		return nil, err
	}

	endpoints := settings.NewEndpoints(store, c.config.DaemonURLDefault)
	client := daemon.NewClient(endpoints, daemon.WithTimeout(c.config.DaemonTimeout))

	return &relay{
		endpoints: endpoints,
		client:    daemon.NewInstrumentedClient(client, tel),
		repo:      repo,
		close:     closeStore,
	}, nil
}

func (r *relay) router(opts ...router.Option) *router.Router {
	return router.New(r.client, opts...)
}
