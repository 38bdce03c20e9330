package settings_test

import (
	"context"
	"errors"
	"testing"

	"github.com/netdout/relay/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("disk on fire")
}

func TestEndpoints_DefaultWhenUnset(t *testing.T) {
	e := settings.NewEndpoints(settings.NewMemoryStore(), settings.DefaultDaemonURL)

	assert.Equal(t, settings.Endpoint("http://127.0.0.1:8472"), e.Endpoint(context.Background()))
}

func TestEndpoints_EmptyFallbackUsesDefault(t *testing.T) {
	e := settings.NewEndpoints(settings.NewMemoryStore(), "  ")

	assert.Equal(t, settings.Endpoint(settings.DefaultDaemonURL), e.Default())
}

func TestEndpoints_RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := settings.NewEndpoints(settings.NewMemoryStore(), settings.DefaultDaemonURL)

	require.NoError(t, e.Set(ctx, "  http://nas.local:9000 \n"))
	assert.Equal(t, settings.Endpoint("http://nas.local:9000"), e.Endpoint(ctx))

	require.NoError(t, e.Set(ctx, "http://nas.local:9000"))
	assert.Equal(t, settings.Endpoint("http://nas.local:9000"), e.Endpoint(ctx))

	require.NoError(t, e.Set(ctx, "http://other:1"))
	assert.Equal(t, settings.Endpoint("http://other:1"), e.Endpoint(ctx), "updates apply to the next read")
}

func TestEndpoints_BlankValueFallsBack(t *testing.T) {
	ctx := context.Background()
	e := settings.NewEndpoints(settings.NewMemoryStore(), "http://fallback:1")

	require.NoError(t, e.Set(ctx, "   "))
	assert.Equal(t, settings.Endpoint("http://fallback:1"), e.Endpoint(ctx))
}

func TestEndpoints_NoValidation(t *testing.T) {
	ctx := context.Background()
	e := settings.NewEndpoints(settings.NewMemoryStore(), settings.DefaultDaemonURL)

	require.NoError(t, e.Set(ctx, "not a url"))
	assert.Equal(t, settings.Endpoint("not a url"), e.Endpoint(ctx))
}

func TestEndpoints_StoreErrorFallsBack(t *testing.T) {
	e := settings.NewEndpoints(failingStore{}, "http://fallback:1")

	assert.Equal(t, settings.Endpoint("http://fallback:1"), e.Endpoint(context.Background()))
	assert.Error(t, e.Set(context.Background(), "x"))
}
