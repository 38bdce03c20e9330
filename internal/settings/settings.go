// Package settings holds the relay's persisted configuration: today a single
// value, the base address of the download daemon.
package settings

import (
	"context"
	"strings"
	"sync"

	"github.com/netdout/relay/internal/logctx"
)

// DaemonURLKey is the key under which the daemon base address is persisted.
const DaemonURLKey = "daemonUrl"

// DefaultDaemonURL is the address used when nothing has been persisted.
const DefaultDaemonURL = "http://127.0.0.1:8472"

// Endpoint is the base address of the download daemon.
type Endpoint string

func (e Endpoint) String() string {
	return string(e)
}

// Store is a string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// EndpointSource resolves the daemon address for an outbound call.
type EndpointSource interface {
	Endpoint(ctx context.Context) Endpoint
}

// Endpoints resolves the daemon address from a Store, falling back to a
// default. Nothing is cached: every call reads the store, so a Set is visible
// to the very next request.
type Endpoints struct {
	store    Store
	fallback Endpoint
}

// NewEndpoints returns an Endpoints backed by store. An empty fallback is
// replaced by DefaultDaemonURL so the resolved address is never empty.
func NewEndpoints(store Store, fallback string) *Endpoints {
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		fallback = DefaultDaemonURL
	}

	return &Endpoints{store: store, fallback: Endpoint(fallback)}
}

// Endpoint returns the persisted address, or the fallback when none is
// persisted, the persisted value is blank, or the store cannot be read.
func (e *Endpoints) Endpoint(ctx context.Context) Endpoint {
	value, found, err := e.store.Get(ctx, DaemonURLKey)
	if err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to read daemon url, using default",
			"default", e.fallback, "err", err)

		return e.fallback
	}

	if !found || value == "" {
		return e.fallback
	}

	return Endpoint(value)
}

// Default returns the fallback address.
func (e *Endpoints) Default() Endpoint {
	return e.fallback
}

// Set persists a new address, trimmed of surrounding whitespace. The value is
// not validated; a malformed address surfaces on the next daemon call.
func (e *Endpoints) Set(ctx context.Context, value string) error {
	return e.store.Set(ctx, DaemonURLKey, strings.TrimSpace(value))
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]

	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value

	return nil
}
